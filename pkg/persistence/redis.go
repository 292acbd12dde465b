package persistence

import (
	"context"

	"github.com/go-redis/redis"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix is prepended to every storage key.
	KeyPrefix string

	// MaxRetries bounds command retries (0 keeps the client default).
	MaxRetries int
}

// RedisStore keeps encoded values as Redis strings.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opt := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.MaxRetries > 0 {
		opt.MaxRetries = cfg.MaxRetries
	}
	client := redis.NewClient(opt)
	if _, err := client.Ping().Result(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// GetItem implements Storage.
func (s *RedisStore) GetItem(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.WithContext(ctx).Get(s.prefix + key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, Unmarshal(data, dst)
}

// SetItem implements Storage.
func (s *RedisStore) SetItem(ctx context.Context, key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := Marshal(value)
	if err != nil {
		return err
	}
	return s.client.WithContext(ctx).Set(s.prefix+key, data, 0).Err()
}

// RemoveItem implements Storage.
func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	err := s.client.WithContext(ctx).Del(s.prefix + key).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Close implements Storage.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Compile-time interface satisfaction check.
var _ Storage = (*RedisStore)(nil)

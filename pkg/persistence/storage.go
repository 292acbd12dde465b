package persistence

import (
	"context"
	"errors"
	"strings"
)

// Storage errors.
var (
	ErrClosed     = errors.New("storage closed")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Default storage key parts.
const (
	DefaultPrefix  = "relay@1:core:"
	DefaultVersion = "0.3"
)

// Storage is a durable asynchronous key-value store.
type Storage interface {
	// GetItem decodes the value stored at key into dst.
	// It returns found=false without error when the key is absent.
	GetItem(ctx context.Context, key string, dst any) (found bool, err error)

	// SetItem encodes value and stores it at key, replacing any previous value.
	SetItem(ctx context.Context, key string, value any) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Key composes a storage key as prefix + version + namespace + "//" + name.
// Empty prefix and version fall back to DefaultPrefix and DefaultVersion.
func Key(prefix, version, namespace, name string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if version == "" {
		version = DefaultVersion
	}
	var b strings.Builder
	b.Grow(len(prefix) + len(version) + len(namespace) + len(name) + 2)
	b.WriteString(prefix)
	b.WriteString(version)
	b.WriteString(namespace)
	b.WriteString("//")
	b.WriteString(name)
	return b.String()
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

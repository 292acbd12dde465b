package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaykit/relaysub/pkg/connection"
	"github.com/relaykit/relaysub/pkg/log"
)

// Default client parameters.
const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 10 * time.Second
	DefaultTokenTTL     = 24 * time.Hour

	// AuthQueryParam carries the auth token on the dial URL.
	AuthQueryParam = "auth"
)

// TokenSource issues auth tokens for a relay audience.
type TokenSource interface {
	SignAuthToken(ctx context.Context, aud string, ttl time.Duration) (string, error)
}

// Config configures a Client.
type Config struct {
	// URL is the relay websocket URL (ws:// or wss://).
	URL string

	// Token signs the auth token sent on every dial. Optional.
	Token    TokenSource
	TokenTTL time.Duration

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// PingInterval is the time between websocket pings. The connection is
	// considered lost if nothing is read for PingInterval+PongTimeout.
	PingInterval time.Duration
	PongTimeout  time.Duration

	// Connection configures reconnection. The zero value selects
	// connection.DefaultConfig.
	Connection connection.Config

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Logger      *slog.Logger
	EventLogger log.Logger
}

// DefaultConfig returns the default client configuration without a URL.
func DefaultConfig() Config {
	return Config{
		TokenTTL:     DefaultTokenTTL,
		DialTimeout:  DefaultDialTimeout,
		WriteTimeout: DefaultWriteTimeout,
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
		Connection:   connection.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TokenTTL <= 0 {
		c.TokenTTL = d.TokenTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.Connection == (connection.Config{}) {
		c.Connection = d.Connection
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.EventLogger == nil {
		c.EventLogger = log.NoopLogger{}
	}
	if c.Connection.Logger == nil {
		c.Connection.Logger = c.Logger
	}
	return c
}

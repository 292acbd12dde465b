package subscription

import (
	"log/slog"
	"time"

	"github.com/relaykit/relaysub/pkg/log"
	"github.com/relaykit/relaysub/pkg/persistence"
	"github.com/relaykit/relaysub/pkg/wire"
)

// Defaults.
const (
	DefaultSubscribeTimeout        = 60 * time.Second
	DefaultInitialSubscribeTimeout = 15 * time.Second
	DefaultResolveTimeout          = 5 * time.Second
	DefaultBatchLimit              = 500

	// DefaultUnsubscribeReason is attached to EventDeleted when the caller gives none.
	DefaultUnsubscribeReason = "unsubscribed by client"

	// StorageName is the record name of the persisted snapshot.
	StorageName = "subscription"

	persistTimeout = 10 * time.Second
)

// Config configures a Manager.
type Config struct {
	// SubscribeTimeout bounds a whole Subscribe call and each batch RPC.
	SubscribeTimeout time.Duration

	// InitialSubscribeTimeout bounds a single subscribe RPC round trip.
	InitialSubscribeTimeout time.Duration

	// ResolveTimeout bounds how long IsSubscribed waits for a confirmation.
	ResolveTimeout time.Duration

	// BatchLimit is the maximum number of topics per batch RPC.
	BatchLimit int

	// Protocol is the relay protocol used when a call does not name one.
	Protocol string

	// Storage key parts; see persistence.Key.
	StoragePrefix    string
	StorageVersion   string
	StorageNamespace string

	// Logger for operational messages. Defaults to slog.Default().
	Logger *slog.Logger

	// EventLogger receives subscription lifecycle events. Defaults to log.NoopLogger.
	EventLogger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SubscribeTimeout:        DefaultSubscribeTimeout,
		InitialSubscribeTimeout: DefaultInitialSubscribeTimeout,
		ResolveTimeout:          DefaultResolveTimeout,
		BatchLimit:              DefaultBatchLimit,
		Protocol:                wire.DefaultProtocol,
		StoragePrefix:           persistence.DefaultPrefix,
		StorageVersion:          persistence.DefaultVersion,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = d.SubscribeTimeout
	}
	if c.InitialSubscribeTimeout <= 0 {
		c.InitialSubscribeTimeout = d.InitialSubscribeTimeout
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = d.ResolveTimeout
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.Protocol == "" {
		c.Protocol = d.Protocol
	}
	if c.StoragePrefix == "" {
		c.StoragePrefix = d.StoragePrefix
	}
	if c.StorageVersion == "" {
		c.StorageVersion = d.StorageVersion
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.EventLogger == nil {
		c.EventLogger = log.NoopLogger{}
	}
	return c
}

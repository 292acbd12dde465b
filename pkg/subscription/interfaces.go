package subscription

import (
	"context"

	"github.com/relaykit/relaysub/pkg/wire"
)

// Link is the relay connection the manager subscribes through.
type Link interface {
	// Connected reports whether the link is up.
	Connected() bool

	// Connecting reports whether a connection attempt is underway.
	Connecting() bool

	// Request sends req and waits for its response.
	Request(ctx context.Context, req *wire.Request) (*wire.Response, error)

	// TransportOpen opens the link, waiting until it is connected.
	TransportOpen(ctx context.Context) error

	// OnConnect registers fn for link-up events and returns its remover.
	OnConnect(fn func()) (remove func())

	// OnDisconnect registers fn for link-down events and returns its remover.
	OnDisconnect(fn func()) (remove func())
}

// Heartbeat emits periodic pulses.
type Heartbeat interface {
	OnPulse(fn func()) (remove func())
}

// IdentityProvider supplies the client identity used to derive subscription IDs.
type IdentityProvider interface {
	ClientID(ctx context.Context) (string, error)
}

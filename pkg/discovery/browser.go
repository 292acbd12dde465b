package discovery

import (
	"context"
	"fmt"
	"time"
)

// Browser finds relays on the network.
type Browser interface {
	// BrowseRelays streams relays as they are found. The channel is closed
	// when ctx ends.
	BrowseRelays(ctx context.Context) (<-chan *RelayEndpoint, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds a browse whose ctx has no deadline.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// FilterFunc selects relays.
type FilterFunc func(*RelayEndpoint) bool

// FilterByProtocol accepts relays speaking protocol. Relays that do not
// advertise a protocol are assumed to speak the default one.
func FilterByProtocol(protocol, defaultProtocol string) FilterFunc {
	return func(e *RelayEndpoint) bool {
		p := e.Protocol
		if p == "" {
			p = defaultProtocol
		}
		return p == protocol
	}
}

// FindRelay returns the first relay accepted by every filter.
// Without a ctx deadline it gives up after BrowseTimeout.
func FindRelay(ctx context.Context, browser Browser, filters ...FilterFunc) (*RelayEndpoint, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, BrowseTimeout)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found, err := browser.BrowseRelays(ctx)
	if err != nil {
		return nil, fmt.Errorf("browse relays: %w", err)
	}

next:
	for {
		select {
		case e, ok := <-found:
			if !ok {
				return nil, ErrNotFound
			}
			for _, accept := range filters {
				if !accept(e) {
					continue next
				}
			}
			return e, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNotFound, ctx.Err())
		}
	}
}

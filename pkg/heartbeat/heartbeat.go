// Package heartbeat emits periodic pulses that drive background work such as
// re-checking pending subscriptions.
package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaykit/relaysub/pkg/eventbus"
)

// DefaultInterval is the default time between pulses.
const DefaultInterval = 5 * time.Second

// Heartbeat is a ticker-driven pulse source.
type Heartbeat struct {
	interval time.Duration
	pulses   *eventbus.Bus[uint64]

	seq       atomic.Uint64
	lastPulse atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a heartbeat. A non-positive interval selects DefaultInterval.
func New(interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Heartbeat{
		interval: interval,
		pulses:   eventbus.New[uint64](),
	}
}

// Interval returns the pulse period.
func (h *Heartbeat) Interval() time.Duration {
	return h.interval
}

// OnPulse registers fn to run on every pulse and returns its remover.
// fn runs on the heartbeat goroutine and must not block for long.
func (h *Heartbeat) OnPulse(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return h.pulses.Subscribe(func(uint64) { fn() })
}

// Start begins emitting pulses until Stop is called or ctx ends.
// Starting a running heartbeat has no effect.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.done = make(chan struct{})

	go h.loop(ctx, h.stopCh, h.done)
}

// Stop halts the pulse loop and waits for it to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopCh)
	done := h.done
	h.mu.Unlock()

	<-done
}

// IsRunning reports whether the pulse loop is active.
func (h *Heartbeat) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Pulse fires a pulse immediately, independent of the ticker.
func (h *Heartbeat) Pulse() {
	seq := h.seq.Add(1)
	h.lastPulse.Store(time.Now().UnixNano())
	h.pulses.Publish(seq)
}

// Stats contains pulse statistics.
type Stats struct {
	Pulses    uint64
	LastPulse time.Time
}

// Stats returns the number of pulses fired and when the last one fired.
func (h *Heartbeat) Stats() Stats {
	s := Stats{Pulses: h.seq.Load()}
	if ns := h.lastPulse.Load(); ns != 0 {
		s.LastPulse = time.Unix(0, ns)
	}
	return s
}

func (h *Heartbeat) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			if h.stopCh == stop {
				h.running = false
			}
			h.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			h.Pulse()
		}
	}
}

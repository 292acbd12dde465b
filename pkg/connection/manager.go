package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaykit/relaysub/pkg/eventbus"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotConnected     = errors.New("not connected")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-initiated attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Transition is published on every state change.
type Transition struct {
	Old State
	New State
	// Err is the dial or loss error that caused the change, if any.
	Err error
}

// ConnectFunc establishes the underlying connection.
type ConnectFunc func(ctx context.Context) error

// Config configures a Manager.
type Config struct {
	// Backoff parameters for automatic reconnection.
	Backoff BackoffConfig

	// AttemptTimeout bounds a single reconnection attempt.
	AttemptTimeout time.Duration

	// AutoReconnect enables the reconnect loop after a loss.
	AutoReconnect bool

	// Logger for operational messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Backoff:        DefaultBackoffConfig(),
		AttemptTimeout: 30 * time.Second,
		AutoReconnect:  true,
	}
}

// Manager manages connection lifecycle with automatic reconnection.
type Manager struct {
	mu sync.RWMutex

	state State
	// changed is closed and replaced on every transition.
	changed chan struct{}

	backoff       *Backoff
	connectFn     ConnectFunc
	autoReconnect bool
	attemptTO     time.Duration
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectCh chan struct{}
	loopOnce    sync.Once

	// lostErr is a loss reported while a dial was in flight.
	lostErr error

	transitions *eventbus.Bus[Transition]
}

// NewManager creates a manager with default configuration.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, DefaultConfig())
}

// NewManagerWithConfig creates a manager with custom configuration.
func NewManagerWithConfig(connectFn ConnectFunc, cfg Config) *Manager {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         StateDisconnected,
		changed:       make(chan struct{}),
		backoff:       NewBackoffWithConfig(cfg.Backoff),
		connectFn:     connectFn,
		autoReconnect: cfg.AutoReconnect,
		attemptTO:     cfg.AttemptTimeout,
		logger:        cfg.Logger,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
		transitions:   eventbus.New[Transition](),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// IsConnecting reports whether a connect or reconnect attempt is underway.
func (m *Manager) IsConnecting() bool {
	s := m.State()
	return s == StateConnecting || s == StateReconnecting
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// OnStateChange registers fn for every transition and returns its remover.
// fn runs synchronously on the goroutine that caused the transition.
func (m *Manager) OnStateChange(fn func(Transition)) func() {
	return m.transitions.Subscribe(fn)
}

// Connect establishes the connection.
// It returns nil if already connected and waits if another attempt is underway.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateClosed:
		m.mu.Unlock()
		return ErrConnectionClosed
	case StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return m.WaitConnected(ctx)
	}
	tr := m.setStateLocked(StateConnecting, nil)
	m.lostErr = nil
	m.mu.Unlock()
	m.transitions.Publish(tr)

	err := m.connectFn(ctx)

	m.mu.Lock()
	if m.state != StateConnecting {
		// Closed while dialing.
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	if err != nil {
		tr = m.setStateLocked(StateDisconnected, err)
		m.mu.Unlock()
		m.transitions.Publish(tr)
		return err
	}
	if lost := m.lostErr; lost != nil {
		// The link died before the dial returned.
		m.lostErr = nil
		next := StateDisconnected
		if m.autoReconnect {
			next = StateReconnecting
		}
		tr = m.setStateLocked(next, lost)
		m.mu.Unlock()

		m.logger.Warn("connection lost while connecting", "error", lost, "reconnect", next == StateReconnecting)
		m.transitions.Publish(tr)
		if next == StateReconnecting {
			m.triggerReconnect()
		}
		return fmt.Errorf("%w: %w", ErrNotConnected, lost)
	}
	m.backoff.Reset()
	tr = m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()
	m.transitions.Publish(tr)
	return nil
}

// WaitConnected blocks until the link is up, the manager closes, or ctx ends.
func (m *Manager) WaitConnected(ctx context.Context) error {
	for {
		m.mu.RLock()
		state, changed := m.state, m.changed
		m.mu.RUnlock()

		switch state {
		case StateConnected:
			return nil
		case StateClosed:
			return ErrConnectionClosed
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotConnected, ctx.Err())
		case <-changed:
		}
	}
}

// Disconnect marks the connection as intentionally closed by the caller.
// No reconnection is attempted.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	tr := m.setStateLocked(StateDisconnected, nil)
	m.mu.Unlock()
	m.transitions.Publish(tr)
}

// NotifyConnectionLost reports an unexpected loss detected by the transport.
// Reconnection starts if enabled. A loss reported while a dial is in flight
// fails that attempt even if its ConnectFunc returns nil.
func (m *Manager) NotifyConnectionLost(cause error) {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
	case StateConnecting, StateReconnecting:
		m.lostErr = cause
		m.mu.Unlock()
		return
	default:
		m.mu.Unlock()
		return
	}
	next := StateDisconnected
	if m.autoReconnect {
		next = StateReconnecting
	}
	tr := m.setStateLocked(next, cause)
	m.mu.Unlock()

	m.logger.Warn("connection lost", "error", cause, "reconnect", next == StateReconnecting)
	m.transitions.Publish(tr)

	if next == StateReconnecting {
		m.triggerReconnect()
	}
}

// Reconnect hands a disconnected manager to the reconnect loop, for example
// after a failed initial Connect. It does nothing in other states or when
// automatic reconnection is disabled.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.state != StateDisconnected || !m.autoReconnect {
		m.mu.Unlock()
		return
	}
	tr := m.setStateLocked(StateReconnecting, nil)
	m.mu.Unlock()

	m.transitions.Publish(tr)
	m.triggerReconnect()
}

// StartReconnectLoop starts the background reconnection loop.
// Calling it more than once has no effect.
func (m *Manager) StartReconnectLoop() {
	m.loopOnce.Do(func() {
		m.wg.Add(1)
		go m.reconnectLoop()
	})
}

// BackoffAttempts returns the number of reconnection attempts since the last success.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// Close shuts down the manager and stops the reconnect loop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	tr := m.setStateLocked(StateClosed, nil)
	m.mu.Unlock()
	m.transitions.Publish(tr)

	m.cancel()
	m.wg.Wait()
	m.transitions.Close()
}

func (m *Manager) setStateLocked(next State, err error) Transition {
	tr := Transition{Old: m.state, New: next, Err: err}
	m.state = next
	close(m.changed)
	m.changed = make(chan struct{})
	return tr
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		m.logger.Debug("reconnecting", "attempt", m.backoff.Attempts(), "delay", delay)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.lostErr = nil
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(m.ctx, m.attemptTO)
		err := m.connectFn(ctx)
		cancel()

		if err != nil {
			m.logger.Debug("reconnect attempt failed", "error", err)
			continue
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		if lost := m.lostErr; lost != nil {
			m.lostErr = nil
			m.mu.Unlock()
			m.logger.Debug("reconnected link lost before use", "error", lost)
			continue
		}
		m.backoff.Reset()
		tr := m.setStateLocked(StateConnected, nil)
		m.mu.Unlock()

		m.logger.Info("reconnected")
		m.transitions.Publish(tr)
		return
	}
}

package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff = BackoffConfig{Initial: 20 * time.Millisecond, Max: 80 * time.Millisecond, Jitter: -1}
	return cfg
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", m.State(), want)
}

func TestManager(t *testing.T) {
	t.Run("InitialState", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil })
		defer m.Close()

		if m.State() != StateDisconnected {
			t.Errorf("Initial state = %v, want StateDisconnected", m.State())
		}
		if m.IsConnected() || m.IsConnecting() {
			t.Error("fresh manager should be neither connected nor connecting")
		}
	})

	t.Run("SuccessfulConnect", func(t *testing.T) {
		var calls atomic.Int32
		m := NewManager(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
		defer m.Close()

		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if !m.IsConnected() {
			t.Errorf("State() = %v, want StateConnected", m.State())
		}

		// Connecting again is a no-op.
		if err := m.Connect(context.Background()); err != nil {
			t.Errorf("second Connect() error = %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("dial called %d times, want 1", calls.Load())
		}
	})

	t.Run("FailedConnect", func(t *testing.T) {
		expectedErr := errors.New("connection failed")
		m := NewManager(func(ctx context.Context) error { return expectedErr })
		defer m.Close()

		if err := m.Connect(context.Background()); !errors.Is(err, expectedErr) {
			t.Errorf("Connect() error = %v, want %v", err, expectedErr)
		}
		if m.State() != StateDisconnected {
			t.Errorf("State() = %v, want StateDisconnected", m.State())
		}
	})

	t.Run("ConnectAfterClose", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil })
		m.Close()

		if err := m.Connect(context.Background()); !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("Connect() error = %v, want ErrConnectionClosed", err)
		}
	})

	t.Run("Transitions", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil })
		defer m.Close()

		var got []Transition
		remove := m.OnStateChange(func(tr Transition) { got = append(got, tr) })

		m.Connect(context.Background())
		m.Disconnect()
		remove()
		m.Connect(context.Background())

		expected := []struct{ old, new State }{
			{StateDisconnected, StateConnecting},
			{StateConnecting, StateConnected},
			{StateConnected, StateDisconnected},
		}
		if len(got) != len(expected) {
			t.Fatalf("Got %d transitions, want %d", len(got), len(expected))
		}
		for i, exp := range expected {
			if got[i].Old != exp.old || got[i].New != exp.new {
				t.Errorf("Transition %d: got %v→%v, want %v→%v", i, got[i].Old, got[i].New, exp.old, exp.new)
			}
		}
	})
}

func TestManagerWaitConnected(t *testing.T) {
	t.Run("ReturnsWhenConnected", func(t *testing.T) {
		release := make(chan struct{})
		m := NewManager(func(ctx context.Context) error {
			<-release
			return nil
		})
		defer m.Close()

		go m.Connect(context.Background())
		waitState(t, m, StateConnecting)
		if !m.IsConnecting() {
			t.Error("IsConnecting() = false during dial")
		}

		done := make(chan error, 1)
		go func() { done <- m.WaitConnected(context.Background()) }()

		close(release)
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("WaitConnected() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("WaitConnected did not return")
		}
	})

	t.Run("ContextDeadline", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil })
		defer m.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := m.WaitConnected(ctx)
		if !errors.Is(err, ErrNotConnected) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("WaitConnected() error = %v, want ErrNotConnected wrapping deadline", err)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil })

		done := make(chan error, 1)
		go func() { done <- m.WaitConnected(context.Background()) }()
		time.Sleep(10 * time.Millisecond)
		m.Close()

		select {
		case err := <-done:
			if !errors.Is(err, ErrConnectionClosed) {
				t.Errorf("WaitConnected() error = %v, want ErrConnectionClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("WaitConnected did not return after Close")
		}
	})
}

func TestManagerReconnect(t *testing.T) {
	t.Run("AutoReconnectOnLoss", func(t *testing.T) {
		var calls atomic.Int32
		m := NewManagerWithConfig(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		}, fastConfig())
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		m.NotifyConnectionLost(errors.New("read: EOF"))
		waitState(t, m, StateConnected)

		if calls.Load() < 2 {
			t.Errorf("dial called %d times, want at least 2", calls.Load())
		}
		if m.BackoffAttempts() != 0 {
			t.Errorf("BackoffAttempts() = %d after success, want 0", m.BackoffAttempts())
		}
	})

	t.Run("BackoffOnFailure", func(t *testing.T) {
		var mu sync.Mutex
		var attempts []time.Time
		var calls atomic.Int32

		m := NewManagerWithConfig(func(ctx context.Context) error {
			mu.Lock()
			attempts = append(attempts, time.Now())
			mu.Unlock()
			// First dial connects, next two reconnects fail.
			n := calls.Add(1)
			if n > 1 && n < 4 {
				return errors.New("not yet")
			}
			return nil
		}, fastConfig())
		m.StartReconnectLoop()
		defer m.Close()

		m.Connect(context.Background())
		m.NotifyConnectionLost(errors.New("gone"))
		waitState(t, m, StateConnected)

		mu.Lock()
		defer mu.Unlock()
		if len(attempts) != 4 {
			t.Fatalf("expected 4 dials, got %d", len(attempts))
		}
		if d := attempts[2].Sub(attempts[1]); d < 30*time.Millisecond {
			t.Errorf("second reconnect delay = %v, want >= 40ms backoff", d)
		}
	})

	t.Run("DisabledAutoReconnect", func(t *testing.T) {
		var calls atomic.Int32
		m := NewManagerWithConfig(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		}, fastConfig())
		m.SetAutoReconnect(false)
		m.StartReconnectLoop()
		defer m.Close()

		m.Connect(context.Background())
		m.NotifyConnectionLost(errors.New("gone"))

		time.Sleep(100 * time.Millisecond)
		if m.State() != StateDisconnected {
			t.Errorf("State() = %v, want StateDisconnected", m.State())
		}
		if calls.Load() != 1 {
			t.Errorf("dial called %d times, want 1", calls.Load())
		}
	})

	t.Run("LossDuringConnect", func(t *testing.T) {
		var calls atomic.Int32
		var m *Manager
		m = NewManagerWithConfig(func(ctx context.Context) error {
			if calls.Add(1) == 1 {
				// Peer closes right after the upgrade, before the dial returns.
				m.NotifyConnectionLost(errors.New("closed after upgrade"))
			}
			return nil
		}, fastConfig())
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.Connect(context.Background()); !errors.Is(err, ErrNotConnected) {
			t.Errorf("Connect() error = %v, want ErrNotConnected", err)
		}
		waitState(t, m, StateConnected)
		if calls.Load() != 2 {
			t.Errorf("dial called %d times, want 2", calls.Load())
		}
	})

	t.Run("LossDuringReconnect", func(t *testing.T) {
		var calls atomic.Int32
		var m *Manager
		m = NewManagerWithConfig(func(ctx context.Context) error {
			if calls.Add(1) == 2 {
				m.NotifyConnectionLost(errors.New("reset"))
			}
			return nil
		}, fastConfig())
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		m.NotifyConnectionLost(errors.New("gone"))
		waitState(t, m, StateConnected)
		if calls.Load() != 3 {
			t.Errorf("dial called %d times, want 3", calls.Load())
		}
	})

	t.Run("ReconnectAfterFailedConnect", func(t *testing.T) {
		var calls atomic.Int32
		m := NewManagerWithConfig(func(ctx context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("refused")
			}
			return nil
		}, fastConfig())
		m.StartReconnectLoop()
		defer m.Close()

		if err := m.Connect(context.Background()); err == nil {
			t.Fatal("Connect() succeeded, want error")
		}
		if m.State() != StateDisconnected {
			t.Fatalf("State() = %v, want StateDisconnected", m.State())
		}
		m.Reconnect()
		waitState(t, m, StateConnected)
	})

	t.Run("ReconnectNeedsAutoReconnect", func(t *testing.T) {
		m := NewManagerWithConfig(func(ctx context.Context) error { return nil }, fastConfig())
		m.SetAutoReconnect(false)
		m.StartReconnectLoop()
		defer m.Close()

		m.Reconnect()
		time.Sleep(50 * time.Millisecond)
		if m.State() != StateDisconnected {
			t.Errorf("State() = %v, want StateDisconnected", m.State())
		}
	})

	t.Run("LossCarriesCause", func(t *testing.T) {
		m := NewManagerWithConfig(func(ctx context.Context) error { return nil }, fastConfig())
		m.SetAutoReconnect(false)
		defer m.Close()

		cause := errors.New("broken pipe")
		var got error
		m.OnStateChange(func(tr Transition) {
			if tr.New == StateDisconnected {
				got = tr.Err
			}
		})

		m.Connect(context.Background())
		m.NotifyConnectionLost(cause)
		if !errors.Is(got, cause) {
			t.Errorf("transition error = %v, want %v", got, cause)
		}
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	if got := New(0).Interval(); got != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", got, DefaultInterval)
	}
	if got := New(time.Second).Interval(); got != time.Second {
		t.Errorf("Interval() = %v, want 1s", got)
	}
}

func TestHeartbeatTicks(t *testing.T) {
	h := New(20 * time.Millisecond)

	var count atomic.Int32
	h.OnPulse(func() { count.Add(1) })

	h.Start(context.Background())
	defer h.Stop()

	time.Sleep(110 * time.Millisecond)
	if got := count.Load(); got < 3 {
		t.Errorf("got %d pulses, want at least 3", got)
	}
	if h.Stats().LastPulse.IsZero() {
		t.Error("LastPulse not recorded")
	}
}

func TestHeartbeatManualPulse(t *testing.T) {
	h := New(time.Hour)

	var count atomic.Int32
	remove := h.OnPulse(func() { count.Add(1) })

	h.Pulse()
	h.Pulse()
	remove()
	h.Pulse()

	if got := count.Load(); got != 2 {
		t.Errorf("got %d pulses after remove, want 2", got)
	}
	if got := h.Stats().Pulses; got != 3 {
		t.Errorf("Stats().Pulses = %d, want 3", got)
	}
}

func TestHeartbeatStartStop(t *testing.T) {
	h := New(10 * time.Millisecond)

	var count atomic.Int32
	h.OnPulse(func() { count.Add(1) })

	h.Start(context.Background())
	h.Start(context.Background()) // no-op
	if !h.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}

	time.Sleep(35 * time.Millisecond)
	h.Stop()
	h.Stop() // no-op

	if h.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	stopped := count.Load()
	time.Sleep(40 * time.Millisecond)
	if count.Load() != stopped {
		t.Errorf("pulses continued after Stop: %d -> %d", stopped, count.Load())
	}

	// Restart works.
	h.Start(context.Background())
	defer h.Stop()
	time.Sleep(35 * time.Millisecond)
	if count.Load() == stopped {
		t.Error("no pulses after restart")
	}
}

func TestHeartbeatContextCancel(t *testing.T) {
	h := New(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	h.Start(ctx)
	cancel()

	deadline := time.Now().Add(time.Second)
	for h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.IsRunning() {
		t.Error("heartbeat still running after context cancel")
	}
	h.Stop()
}

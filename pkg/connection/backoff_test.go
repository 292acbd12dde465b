package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second, // stays at max
		}

		for i, exp := range expected {
			base := b.Current()
			_ = b.Next()
			if base != exp {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("JitterBounds", func(t *testing.T) {
		upper := time.Duration(float64(InitialBackoff) * (1 + JitterFactor))
		for i := 0; i < 50; i++ {
			d := NewBackoff().Next()
			if d < InitialBackoff || d > upper {
				t.Fatalf("sample %d: %v out of range [%v, %v]", i, d, InitialBackoff, upper)
			}
		}
	})

	t.Run("NoJitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: 10 * time.Millisecond, Jitter: -1})
		if d := b.Next(); d != 10*time.Millisecond {
			t.Errorf("Next() = %v, want 10ms", d)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}
		if b.Attempts() != 5 {
			t.Errorf("Attempts() = %d, want 5", b.Attempts())
		}

		b.Reset()
		if b.Current() != InitialBackoff {
			t.Errorf("Current() after reset = %v, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() after reset = %d, want 0", b.Attempts())
		}
	})

	t.Run("ConfigDefaults", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Minute, Max: time.Second, Multiplier: 0.5})
		// Max below Initial is raised to Initial; multiplier falls back to the default.
		b.Next()
		if b.Current() != time.Minute {
			t.Errorf("Current() = %v, want 1m", b.Current())
		}
	})
}

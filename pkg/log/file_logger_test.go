package log

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readAll(t *testing.T, path string) []Event {
	t.Helper()
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	var events []Event
	for ev, err := range r.All() {
		if err != nil {
			t.Fatalf("read event %d: %v", len(events), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestFileLoggerWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.rlog")

	for _, id := range []string{"conn-1", "conn-2"} {
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger: %v", err)
		}
		l.Log(Event{Timestamp: time.Now(), ConnectionID: id, Layer: LayerRPC})
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if h := r.Header(); h.Magic != FileMagic || h.Version != FileVersion || h.Created.IsZero() {
		t.Errorf("header = %+v", h)
	}

	events := readAll(t, path)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (a second header would show up as an event)", len(events))
	}
	if events[0].ConnectionID != "conn-1" || events[1].ConnectionID != "conn-2" {
		t.Errorf("order: %q, %q", events[0].ConnectionID, events[1].ConnectionID)
	}
}

func TestFileLoggerKeepsFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.rlog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	if l.Path() != path {
		t.Errorf("Path = %q", l.Path())
	}

	l.Log(Event{
		Timestamp: time.Now(),
		Direction: DirectionIn,
		Layer:     LayerLink,
		Frame:     NewFrameEvent([]byte(`{"jsonrpc":"2.0","id":1,"result":true}`)),
	})
	l.Close()

	events := readAll(t, path)
	if len(events) != 1 || events[0].Frame == nil || events[0].Frame.Size != 38 {
		t.Fatalf("events = %+v", events)
	}
	if l.Dropped() != 0 {
		t.Errorf("Dropped = %d", l.Dropped())
	}
}

func TestFileLoggerConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.rlog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				l.Log(Event{
					Timestamp:    time.Now(),
					Layer:        LayerManager,
					Category:     CategorySubscription,
					Subscription: &SubscriptionEvent{Action: ActionPending, Topic: string(rune('a' + i))},
				})
			}
		}()
	}
	wg.Wait()
	l.Close()

	if got := len(readAll(t, path)); got != writers*perWriter {
		t.Errorf("got %d events, want %d", got, writers*perWriter)
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.rlog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	l.Log(Event{Timestamp: time.Now(), ConnectionID: "before"})

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	l.Log(Event{Timestamp: time.Now(), ConnectionID: "after"})

	if events := readAll(t, path); len(events) != 1 || events[0].ConnectionID != "before" {
		t.Errorf("events = %+v", events)
	}
}

func TestFileLoggerBadPath(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "missing-dir", "client.rlog"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

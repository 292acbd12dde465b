package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relaykit/relaysub/pkg/log"
)

func writeEventLog(t *testing.T, events ...log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.rlog")
	fl, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, ev := range events {
		fl.Log(ev)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestDumpLog(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rtt := 42 * time.Millisecond
	path := writeEventLog(t,
		log.Event{
			Timestamp:    ts,
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionOut,
			Layer:        log.LayerRPC,
			Category:     log.CategoryMessage,
			Message: &log.MessageEvent{
				Type:      log.MessageTypeResponse,
				RequestID: 7,
				Method:    "relay_subscribe",
				Topic:     "news",
				RoundTrip: &rtt,
			},
		},
		log.Event{
			Timestamp: ts.Add(time.Second),
			Direction: log.DirectionLocal,
			Layer:     log.LayerManager,
			Category:  log.CategorySubscription,
			Subscription: &log.SubscriptionEvent{
				Action: log.ActionCreated,
				Topic:  "news",
				ID:     "73f3d689f1e42e5a",
			},
		},
		log.Event{
			Timestamp: ts.Add(2 * time.Second),
			Direction: log.DirectionLocal,
			Layer:     log.LayerManager,
			Category:  log.CategorySubscription,
			Subscription: &log.SubscriptionEvent{
				Action: log.ActionCreated,
				Topic:  "alerts",
			},
		},
	)

	var buf bytes.Buffer
	n, err := dumpLog(&buf, path, log.Filter{})
	if err != nil {
		t.Fatalf("dumpLog: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}
	out := buf.String()
	for _, want := range []string{
		"2026-03-02T09:30:00.000000Z [conn:abc12345]",
		"RESPONSE #7 relay_subscribe topic=news rtt=42ms",
		"[conn:-]",
		"CREATED topic=news id=73f3d689",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	n, err = dumpLog(&buf, path, log.Filter{Topic: "alerts"})
	if err != nil {
		t.Fatalf("dumpLog filtered: %v", err)
	}
	if n != 1 || strings.Contains(buf.String(), "news") {
		t.Errorf("filtered dump = %d events:\n%s", n, buf.String())
	}
}

func TestDumpLogMissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	code := runDumpLog([]string{filepath.Join(t.TempDir(), "none.rlog")}, &out, &errOut)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "Error:") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestDumpLogUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := runDumpLog(nil, &out, &errOut); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "log file path required") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

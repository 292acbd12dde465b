package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/relaykit/relaysub/pkg/subscription"
)

func TestParseSubscribeArgs(t *testing.T) {
	opts, topic, err := parseSubscribeArgs([]string{"news", "--link", "--proto", "waku"})
	if err != nil {
		t.Fatalf("parseSubscribeArgs: %v", err)
	}
	if topic != "news" {
		t.Errorf("topic = %q", topic)
	}
	if opts.TransportType != subscription.TransportLinkMode {
		t.Errorf("TransportType = %q", opts.TransportType)
	}
	if opts.Protocol != "waku" {
		t.Errorf("Protocol = %q", opts.Protocol)
	}

	for _, args := range [][]string{nil, {"--link"}, {"a", "b"}, {"a", "--proto"}} {
		if _, _, err := parseSubscribeArgs(args); err == nil {
			t.Errorf("parseSubscribeArgs(%q): expected error", args)
		}
	}
}

func TestShellExecute(t *testing.T) {
	var buf bytes.Buffer
	s := &Shell{out: &buf}
	ctx := context.Background()

	if s.execute(ctx, "   ") {
		t.Error("blank line should not quit")
	}
	if s.execute(ctx, "frobnicate") {
		t.Error("unknown command should not quit")
	}
	if !strings.Contains(buf.String(), "Unknown command: frobnicate") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	s.execute(ctx, "sub")
	if !strings.Contains(buf.String(), "Usage: sub") {
		t.Errorf("sub without topic: %q", buf.String())
	}

	buf.Reset()
	s.execute(ctx, "unsub")
	if !strings.Contains(buf.String(), "Usage: unsub") {
		t.Errorf("unsub without topic: %q", buf.String())
	}

	buf.Reset()
	s.execute(ctx, "help")
	if !strings.Contains(buf.String(), "dump-log <file>") {
		t.Errorf("help output = %q", buf.String())
	}

	if !s.execute(ctx, "QUIT") {
		t.Error("quit should exit")
	}
}

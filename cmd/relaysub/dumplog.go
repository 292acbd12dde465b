package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/relaykit/relaysub/pkg/log"
)

// runDumpLog implements `relaysub dump-log [flags] <file>`.
func runDumpLog(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dump-log", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, `relaysub dump-log - Print a CBOR event log

Usage:
  relaysub dump-log [flags] <file>

Flags:
`)
		fs.PrintDefaults()
	}

	var filter log.Filter
	fs.StringVar(&filter.Topic, "topic", "", "Only show events for this topic")
	fs.StringVar(&filter.ConnectionID, "conn-id", "", "Only show events of this connection")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: log file path required")
		fs.Usage()
		return 2
	}

	if _, err := dumpLog(stdout, fs.Arg(0), filter); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// dumpLog writes every matching event of the log at path and returns the count.
func dumpLog(w io.Writer, path string, filter log.Filter) (int, error) {
	r, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0
	for event, err := range r.All() {
		if err != nil {
			return n, fmt.Errorf("event %d: %w", n+1, err)
		}
		formatEvent(w, event)
		n++
	}
	return n, nil
}

// formatEvent writes one line per event: timestamp [conn] DIRECTION LAYER type details.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	conn := shortenConnID(event.ConnectionID)
	if conn == "" {
		conn = "-"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-5s %-7s %s\n", ts, conn, event.Direction, event.Layer, describe(event))
}

func describe(event log.Event) string {
	switch {
	case event.Message != nil:
		m := event.Message
		s := fmt.Sprintf("%s #%d", m.Type, m.RequestID)
		if m.Method != "" {
			s += " " + m.Method
		}
		if m.Topic != "" {
			s += " topic=" + m.Topic
		}
		if m.ErrorCode != nil {
			s += fmt.Sprintf(" code=%d", *m.ErrorCode)
		}
		if m.RoundTrip != nil {
			s += fmt.Sprintf(" rtt=%s", *m.RoundTrip)
		}
		return s
	case event.Subscription != nil:
		sub := event.Subscription
		s := sub.Action.String()
		if sub.Topic != "" {
			s += " topic=" + sub.Topic
		}
		if sub.ID != "" {
			s += " id=" + shortenConnID(sub.ID)
		}
		if sub.Count != 0 {
			s += fmt.Sprintf(" count=%d", sub.Count)
		}
		if sub.Reason != "" {
			s += fmt.Sprintf(" reason=%q", sub.Reason)
		}
		return s
	case event.StateChange != nil:
		sc := event.StateChange
		s := fmt.Sprintf("State %s %s -> %s", sc.Entity, sc.OldState, sc.NewState)
		if sc.Reason != "" {
			s += fmt.Sprintf(" (%s)", sc.Reason)
		}
		return s
	case event.ControlMsg != nil:
		s := event.ControlMsg.Type.String()
		if event.ControlMsg.CloseCode != nil {
			s += fmt.Sprintf(" code=%d", *event.ControlMsg.CloseCode)
		}
		return s
	case event.Frame != nil:
		return fmt.Sprintf("Frame %d bytes", event.Frame.Size)
	case event.Error != nil:
		return "Error " + event.Error.Message
	}
	return "Unknown"
}

// shortenConnID returns the first 8 characters of an identifier.
func shortenConnID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/relaykit/relaysub/pkg/log"
	"github.com/relaykit/relaysub/pkg/relay"
	"github.com/relaykit/relaysub/pkg/subscription"
)

const checkTimeout = 10 * time.Second

// Shell is the interactive command interface.
type Shell struct {
	mgr    *subscription.Manager
	client *relay.Client
	rl     *readline.Instance
	out    io.Writer
}

func newShell() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "relaysub> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

func (s *Shell) attach(mgr *subscription.Manager, client *relay.Client) {
	s.mgr = mgr
	s.client = client
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.execute(ctx, line) {
			cancel()
			return
		}
	}
}

// execute runs one command line and reports whether the shell should exit.
func (s *Shell) execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "sub", "subscribe":
		s.cmdSubscribe(ctx, args)
	case "unsub", "unsubscribe":
		s.cmdUnsubscribe(ctx, args)
	case "check":
		s.cmdCheck(ctx, args)
	case "list", "ls":
		s.cmdList()
	case "pending":
		s.cmdPending()
	case "cached":
		s.cmdCached()
	case "status":
		s.cmdStatus()
	case "dump-log":
		s.cmdDumpLog(args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Relay Subscription Commands:
  Subscriptions:
    sub <topic> [--link] [--proto <name>]  - Subscribe to a topic
    unsub <topic> [id]                     - Unsubscribe all or one ID of a topic
    check <topic>                          - Report whether a topic is subscribed

  State:
    list                                   - List active subscriptions
    pending                                - List unconfirmed subscribe requests
    cached                                 - List subscriptions waiting for the link
    status                                 - Show client status

  General:
    dump-log <file>                        - Print a CBOR event log
    help                                   - Show this help
    quit                                   - Exit`)
}

func (s *Shell) cmdSubscribe(ctx context.Context, args []string) {
	opts, topic, err := parseSubscribeArgs(args)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\nUsage: sub <topic> [--link] [--proto <name>]\n", err)
		return
	}
	id, err := s.mgr.SubscribeWithOptions(ctx, topic, opts)
	if err != nil {
		fmt.Fprintf(s.out, "Subscribe %s failed: %v\n", topic, err)
		return
	}
	fmt.Fprintf(s.out, "Subscribed %s (id %s)\n", topic, id)
}

func parseSubscribeArgs(args []string) (subscription.SubscribeOptions, string, error) {
	var opts subscription.SubscribeOptions
	var topic string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--link", "-link":
			opts.TransportType = subscription.TransportLinkMode
		case "--proto", "-proto":
			if i+1 >= len(args) {
				return opts, "", fmt.Errorf("%s needs a value", args[i])
			}
			i++
			opts.Protocol = args[i]
		default:
			if topic != "" {
				return opts, "", fmt.Errorf("unexpected argument %q", args[i])
			}
			topic = args[i]
		}
	}
	if topic == "" {
		return opts, "", fmt.Errorf("topic required")
	}
	return opts, topic, nil
}

func (s *Shell) cmdUnsubscribe(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(s.out, "Usage: unsub <topic> [id]")
		return
	}
	opts := subscription.UnsubscribeOptions{Reason: "unsubscribed from shell"}
	if len(args) == 2 {
		opts.ID = args[1]
	}
	if err := s.mgr.UnsubscribeWithOptions(ctx, args[0], opts); err != nil {
		fmt.Fprintf(s.out, "Unsubscribe %s failed: %v\n", args[0], err)
		return
	}
	fmt.Fprintf(s.out, "Unsubscribed %s\n", args[0])
}

func (s *Shell) cmdCheck(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: check <topic>")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.mgr.IsSubscribed(ctx, args[0]) {
		fmt.Fprintf(s.out, "%s: subscribed\n", args[0])
	} else {
		fmt.Fprintf(s.out, "%s: not subscribed\n", args[0])
	}
}

func (s *Shell) cmdList() {
	s.printSubscriptions("Active", s.mgr.Subscriptions())
}

func (s *Shell) cmdCached() {
	s.printSubscriptions("Cached", s.mgr.Cached())
}

func (s *Shell) printSubscriptions(label string, subs []subscription.Subscription) {
	if len(subs) == 0 {
		fmt.Fprintf(s.out, "%s subscriptions: none\n", label)
		return
	}
	fmt.Fprintf(s.out, "%s subscriptions (%d):\n", label, len(subs))
	for _, sub := range subs {
		mode := ""
		if sub.TransportType == subscription.TransportLinkMode {
			mode = " [link]"
		}
		fmt.Fprintf(s.out, "  %-32s %s%s\n", sub.Topic, sub.ID, mode)
	}
}

func (s *Shell) cmdPending() {
	pending := s.mgr.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(s.out, "Pending subscriptions: none")
		return
	}
	fmt.Fprintf(s.out, "Pending subscriptions (%d):\n", len(pending))
	for _, p := range pending {
		fmt.Fprintf(s.out, "  %-32s protocol=%s\n", p.Topic, p.Protocol)
	}
}

func (s *Shell) cmdStatus() {
	fmt.Fprintln(s.out, "Client Status:")
	fmt.Fprintf(s.out, "  Client ID:  %s\n", s.mgr.ClientID())
	fmt.Fprintf(s.out, "  Relay:      %s\n", s.client.URL())
	fmt.Fprintf(s.out, "  Link:       %s\n", s.client.State())
	fmt.Fprintf(s.out, "  Connected:  %v\n", s.mgr.IsConnected())
	fmt.Fprintf(s.out, "  Active:     %d\n", len(s.mgr.Subscriptions()))
	fmt.Fprintf(s.out, "  Pending:    %d\n", s.mgr.PendingCount())
	fmt.Fprintf(s.out, "  Cached:     %d\n", len(s.mgr.Cached()))
}

func (s *Shell) cmdDumpLog(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: dump-log <file>")
		return
	}
	n, err := dumpLog(s.out, args[0], log.Filter{})
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "%d events\n", n)
}

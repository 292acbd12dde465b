// Command relaysub is a relay subscription client.
//
// It connects to a relay over a websocket, keeps a persistent set of topic
// subscriptions, restores them after restarts and reconnects, and prints
// messages delivered on subscribed topics.
//
// Usage:
//
//	relaysub [flags]
//	relaysub dump-log [flags] <file>
//
// Flags:
//
//	-config string       Configuration file path (YAML)
//	-url string          Relay websocket URL (ws:// or wss://)
//	-discover            Find a relay on the local network via mDNS
//	-store string        Storage backend: memory, file, sqlite, redis (default "memory")
//	-store-path string   File path (file, sqlite) or address (redis) of the store
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-event-log string    Write CBOR protocol events to this file
//	-interactive         Enable interactive command mode
//	-topics string       Comma-separated topics to subscribe at startup
//
// Examples:
//
//	# Subscribe to two topics and keep the set in SQLite
//	relaysub -url wss://relay.example.com -store sqlite -store-path relaysub.db -topics news,alerts
//
//	# Find a relay on the LAN and open the shell
//	relaysub -discover -interactive
//
//	# Inspect a protocol log written with -event-log
//	relaysub dump-log -topic news events.rlog
//
// Interactive Commands:
//
//	sub <topic> [--link] [--proto <name>]  - Subscribe to a topic
//	unsub <topic> [id]                     - Unsubscribe a topic
//	check <topic>                          - Report whether a topic is subscribed
//	list                                   - List active subscriptions
//	pending                                - List unconfirmed subscribe requests
//	cached                                 - List subscriptions waiting for the link
//	status                                 - Show client status
//	dump-log <file>                        - Print a CBOR event log
//	quit                                   - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relaykit/relaysub/pkg/discovery"
	"github.com/relaykit/relaysub/pkg/heartbeat"
	"github.com/relaykit/relaysub/pkg/identity"
	"github.com/relaykit/relaysub/pkg/log"
	"github.com/relaykit/relaysub/pkg/persistence"
	"github.com/relaykit/relaysub/pkg/relay"
	"github.com/relaykit/relaysub/pkg/subscription"
	"github.com/relaykit/relaysub/pkg/wire"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "dump-log" {
		os.Exit(runDumpLog(os.Args[2:], os.Stdout, os.Stderr))
	}

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var shell *Shell
	var out io.Writer = os.Stderr
	if cfg.Interactive {
		var err error
		if shell, err = newShell(); err != nil {
			return err
		}
		// Log through readline so output does not clobber the prompt.
		out = shell.Stdout()
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger := setupLogging(out, level)
	slog.SetDefault(logger)

	events, closeEvents, err := setupEventLog(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer storage.Close()

	ident, err := identity.NewProvider(storage, identity.Config{Logger: logger})
	if err != nil {
		return err
	}
	clientID, err := ident.ClientID(ctx)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	logger.Info("client identity", "client_id", clientID)

	url, err := relayURL(ctx, cfg, logger)
	if err != nil {
		return err
	}

	relayCfg := relay.DefaultConfig()
	relayCfg.URL = url
	relayCfg.Token = ident
	relayCfg.Logger = logger.With("component", "relay")
	relayCfg.EventLogger = events
	client, err := relay.NewClient(relayCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnMessage(func(msg relay.Message) {
		fmt.Fprintf(out, "[%s] %s\n", msg.Data.Topic, msg.Data.Message)
	})

	beat := heartbeat.New(cfg.HeartbeatInterval)
	beat.Start(ctx)
	defer beat.Stop()

	subCfg := subscription.DefaultConfig()
	subCfg.Protocol = cfg.Protocol
	subCfg.SubscribeTimeout = cfg.SubscribeTimeout
	subCfg.Logger = logger.With("component", "subscription")
	subCfg.EventLogger = events
	mgr, err := subscription.NewManager(client, storage, beat, ident, subCfg)
	if err != nil {
		return err
	}
	mgr.OnEvent(func(ev subscription.Event) {
		logEvent(logger, ev)
	})

	if err := mgr.Init(ctx); err != nil {
		return fmt.Errorf("init subscriptions: %w", err)
	}
	if err := client.TransportOpen(ctx); err != nil {
		logger.Warn("relay not reachable, reconnecting in background", "url", url, "error", err)
		client.Reconnect()
	}
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start subscriptions: %w", err)
	}

	for _, topic := range cfg.Topics {
		id, err := mgr.Subscribe(ctx, topic)
		if err != nil {
			logger.Warn("subscribe failed", "topic", topic, "error", err)
			continue
		}
		logger.Info("subscribed", "topic", topic, "id", id)
	}

	if shell != nil {
		shell.attach(mgr, client)
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := mgr.Stop(stopCtx); err != nil {
		logger.Warn("stop subscriptions", "error", err)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func setupLogging(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// setupEventLog returns the protocol event sink. Events always go to the
// debug log; -event-log adds a CBOR file.
func setupEventLog(cfg Config, logger *slog.Logger) (log.Logger, func(), error) {
	console := log.NewSlogAdapter(logger.With("component", "events"))
	if cfg.EventLog == "" {
		return console, func() {}, nil
	}
	file, err := log.NewFileLogger(cfg.EventLog)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	logger.Info("writing protocol events", "path", cfg.EventLog)
	return log.NewMultiLogger(file, console), func() { file.Close() }, nil
}

func openStorage(ctx context.Context, cfg Config) (persistence.Storage, error) {
	switch cfg.Store {
	case storeFile:
		return persistence.OpenFileStore(cfg.StorePath)
	case storeSQLite:
		return persistence.OpenSQLiteStore(ctx, persistence.SQLiteConfig{Path: cfg.StorePath})
	case storeRedis:
		return persistence.NewRedisStore(persistence.RedisConfig{Addr: cfg.StorePath})
	default:
		return persistence.NewMemoryStore(), nil
	}
}

// relayURL returns -url or, with -discover, the first relay found via mDNS.
func relayURL(ctx context.Context, cfg Config, logger *slog.Logger) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}

	logger.Info("browsing for relays", "service", discovery.ServiceType)
	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	defer browser.Stop()

	ep, err := discovery.FindRelay(ctx, browser, discovery.FilterByProtocol(cfg.Protocol, wire.DefaultProtocol))
	if err != nil {
		return "", fmt.Errorf("discover relay: %w", err)
	}
	url := ep.URL()
	logger.Info("found relay", "instance", ep.InstanceName, "url", url)
	return url, nil
}

func logEvent(logger *slog.Logger, ev subscription.Event) {
	switch ev.Type {
	case subscription.EventCreated:
		logger.Info("subscription created", "topic", ev.Subscription.Topic, "id", ev.Subscription.ID)
	case subscription.EventDeleted:
		logger.Info("subscription deleted", "topic", ev.Subscription.Topic, "reason", ev.Reason)
	case subscription.EventResubscribed:
		logger.Info("resubscribed", "count", ev.Count)
	case subscription.EventSync:
		logger.Debug("subscriptions saved", "count", ev.Count)
	case subscription.EventConnectionStalled:
		logger.Warn("relay request stalled", "topic", ev.Topic, "error", ev.Err)
	}
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaykit/relaysub/pkg/heartbeat"
	"github.com/relaykit/relaysub/pkg/subscription"
	"github.com/relaykit/relaysub/pkg/wire"
)

// Storage backends accepted by -store.
const (
	storeMemory = "memory"
	storeFile   = "file"
	storeSQLite = "sqlite"
	storeRedis  = "redis"
)

// Config holds the client configuration. Values from the YAML file named by
// -config are applied first; flags given on the command line win.
type Config struct {
	ConfigFile string `yaml:"-"`

	URL      string `yaml:"url"`
	Discover bool   `yaml:"discover"`
	Protocol string `yaml:"protocol"`

	Store     string `yaml:"store"`
	StorePath string `yaml:"storePath"`

	LogLevel string `yaml:"logLevel"`
	EventLog string `yaml:"eventLog"`

	Interactive bool     `yaml:"interactive"`
	Topics      []string `yaml:"topics"`

	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	SubscribeTimeout  time.Duration `yaml:"subscribeTimeout"`
}

func defaultConfig() Config {
	return Config{
		Protocol:          wire.DefaultProtocol,
		Store:             storeMemory,
		LogLevel:          "info",
		HeartbeatInterval: heartbeat.DefaultInterval,
		SubscribeTimeout:  subscription.DefaultSubscribeTimeout,
	}
}

// parseConfig parses command line arguments, overlaying them on the config file.
func parseConfig(args []string, stderr io.Writer) (Config, error) {
	fs := flag.NewFlagSet("relaysub", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := defaultConfig()
	var topics string

	fs.StringVar(&cfg.ConfigFile, "config", "", "Configuration file path (YAML)")
	fs.StringVar(&cfg.URL, "url", cfg.URL, "Relay websocket URL (ws:// or wss://)")
	fs.BoolVar(&cfg.Discover, "discover", cfg.Discover, "Find a relay on the local network via mDNS when -url is empty")
	fs.StringVar(&cfg.Protocol, "protocol", cfg.Protocol, "Relay protocol prefix for RPC method names")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Storage backend: memory, file, sqlite, redis")
	fs.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "File path (file, sqlite) or address (redis) of the store")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.EventLog, "event-log", cfg.EventLog, "Write CBOR protocol events to this file")
	fs.BoolVar(&cfg.Interactive, "interactive", cfg.Interactive, "Enable interactive command mode")
	fs.StringVar(&topics, "topics", "", "Comma-separated topics to subscribe at startup")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "Interval between pending-subscription retries")
	fs.DurationVar(&cfg.SubscribeTimeout, "subscribe-timeout", cfg.SubscribeTimeout, "Timeout of a single subscribe call")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.ConfigFile != "" {
		flagged := cfg
		fileCfg, err := loadConfigFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
		cfg.ConfigFile = flagged.ConfigFile
		fs.Visit(func(f *flag.Flag) {
			overlayFlag(&cfg, &flagged, f.Name)
		})
	}
	if topics != "" {
		cfg.Topics = splitTopics(topics)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadConfigFile reads a YAML config on top of the defaults.
func loadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func overlayFlag(dst, src *Config, name string) {
	switch name {
	case "url":
		dst.URL = src.URL
	case "discover":
		dst.Discover = src.Discover
	case "protocol":
		dst.Protocol = src.Protocol
	case "store":
		dst.Store = src.Store
	case "store-path":
		dst.StorePath = src.StorePath
	case "log-level":
		dst.LogLevel = src.LogLevel
	case "event-log":
		dst.EventLog = src.EventLog
	case "interactive":
		dst.Interactive = src.Interactive
	case "heartbeat":
		dst.HeartbeatInterval = src.HeartbeatInterval
	case "subscribe-timeout":
		dst.SubscribeTimeout = src.SubscribeTimeout
	}
}

func (c Config) validate() error {
	switch c.Store {
	case storeMemory:
	case storeFile, storeSQLite, storeRedis:
		if c.StorePath == "" {
			return fmt.Errorf("-store %s requires -store-path", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, file, sqlite or redis)", c.Store)
	}
	if c.URL == "" && !c.Discover {
		return fmt.Errorf("either -url or -discover is required")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func splitTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

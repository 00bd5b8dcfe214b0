// Package model defines shared configuration structures used to initialize a
// SerialShell session, loaded from a YAML file and overridden by CLI flags.
package model

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the root structure loaded from serialsh.yml.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Sync       SyncConfig       `yaml:"sync"`
	Wire       WireConfig       `yaml:"wire"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Console    ConsoleConfig    `yaml:"console"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Log        LogConfig        `yaml:"log"`
}

// DeviceConfig selects and opens the device connection.
type DeviceConfig struct {
	Port          string `yaml:"port"`            // serial path or tcp://host:port; empty prompts
	Baud          int    `yaml:"baud"`            // serial baud rate
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // short blocking read timeout
}

// SyncConfig tunes response completion detection.
type SyncConfig struct {
	Strategy       string `yaml:"strategy"`         // growth | terminator
	PollIntervalMs int    `yaml:"poll_interval_ms"` // sleep between probes
	MaxWaitMs      int    `yaml:"max_wait_ms"`      // 0 waits forever
	Terminator     string `yaml:"terminator"`       // used by the terminator strategy
	MaxRead        int    `yaml:"max_read"`         // bytes drained per response
}

// WireConfig controls what goes on the wire.
type WireConfig struct {
	Terminator string `yaml:"terminator"` // appended to every outgoing payload, escapes allowed
	Encoding   string `yaml:"encoding"`   // utf-8, ascii, latin1, windows-1252
}

// DispatchConfig selects how built-in commands are executed.
type DispatchConfig struct {
	Mode    string `yaml:"mode"`    // async | sync
	Workers int    `yaml:"workers"` // concurrent command workers in async mode
}

// ConsoleConfig configures the line editor.
type ConsoleConfig struct {
	Prompt      string `yaml:"prompt"`
	HistoryFile string `yaml:"history_file"`
}

// MonitorConfig enables the HTTP/websocket mirror when Addr is set.
type MonitorConfig struct {
	Addr string `yaml:"addr"` // e.g. ":8090"
}

// TranscriptConfig enables the persistent transcript when Path is set.
type TranscriptConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	File  string `yaml:"file"`  // empty logs to the console's stderr
}

// Dispatch modes.
const (
	DispatchAsync = "async"
	DispatchSync  = "sync"
)

// Sync strategies.
const (
	StrategyGrowth     = "growth"
	StrategyTerminator = "terminator"
)

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Baud:          9600,
			ReadTimeoutMs: 10,
		},
		Sync: SyncConfig{
			Strategy:       StrategyGrowth,
			PollIntervalMs: 30,
			MaxRead:        1000,
		},
		Wire: WireConfig{
			Encoding: "utf-8",
		},
		Dispatch: DispatchConfig{
			Mode:    DispatchAsync,
			Workers: 4,
		},
		Console: ConsoleConfig{
			Prompt:      ">> ",
			HistoryFile: ".serialsh_history",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load reads the YAML configuration at path on top of DefaultConfig.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and fills zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Device.Baud <= 0 {
		c.Device.Baud = def.Device.Baud
	}
	if c.Device.ReadTimeoutMs <= 0 {
		c.Device.ReadTimeoutMs = def.Device.ReadTimeoutMs
	}
	if c.Sync.PollIntervalMs <= 0 {
		c.Sync.PollIntervalMs = def.Sync.PollIntervalMs
	}
	if c.Sync.MaxWaitMs < 0 {
		return fmt.Errorf("sync.max_wait_ms must not be negative")
	}
	if c.Sync.MaxRead <= 0 {
		c.Sync.MaxRead = def.Sync.MaxRead
	}
	switch c.Sync.Strategy {
	case "":
		c.Sync.Strategy = StrategyGrowth
	case StrategyGrowth:
	case StrategyTerminator:
		if c.Sync.Terminator == "" {
			return fmt.Errorf("sync.terminator is required for the %s strategy", StrategyTerminator)
		}
	default:
		return fmt.Errorf("unknown sync.strategy %q", c.Sync.Strategy)
	}
	switch c.Dispatch.Mode {
	case "":
		c.Dispatch.Mode = DispatchAsync
	case DispatchAsync, DispatchSync:
	default:
		return fmt.Errorf("unknown dispatch.mode %q", c.Dispatch.Mode)
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = def.Dispatch.Workers
	}
	if c.Console.Prompt == "" {
		c.Console.Prompt = def.Console.Prompt
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	return nil
}

// ReadTimeout returns the device read timeout as a duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Device.ReadTimeoutMs) * time.Millisecond
}

// PollInterval returns the synchronizer poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMs) * time.Millisecond
}

// MaxWait returns the synchronizer wait bound; zero means unbounded.
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Sync.MaxWaitMs) * time.Millisecond
}

// Package config loads the server configuration from YAML or TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   ListenConfig  `yaml:"listen" toml:"listen"`
	World    WorldConfig   `yaml:"world" toml:"world"`
	Data     DataConfig    `yaml:"data" toml:"data"`
	Timeouts TimeoutConfig `yaml:"timeouts" toml:"timeouts"`
	Log      LogConfig     `yaml:"log" toml:"log"`
	Index    IndexConfig   `yaml:"index" toml:"index"`
	Ingest   IngestConfig  `yaml:"ingest" toml:"ingest"`
	Metrics  MetricsConfig `yaml:"metrics" toml:"metrics"`
}

type ListenConfig struct {
	TCP  string `yaml:"tcp" toml:"tcp"`   // game clients; empty disables
	HTTP string `yaml:"http" toml:"http"` // ws, health and metrics; empty disables

	// WSPath is where the websocket transport is mounted on the HTTP
	// listener.
	WSPath string `yaml:"ws_path" toml:"ws_path"`
}

type WorldConfig struct {
	Capacity int    `yaml:"capacity" toml:"capacity"`
	TickMS   int    `yaml:"tick_ms" toml:"tick_ms"`
	Welcome  string `yaml:"welcome" toml:"welcome"`
}

type DataConfig struct {
	Dir string `yaml:"dir" toml:"dir"`

	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend" toml:"backend"`

	// Journal enables the zstd JSONL tick and audit journals.
	Journal bool `yaml:"journal" toml:"journal"`
}

type TimeoutConfig struct {
	HandshakeMS int `yaml:"handshake_ms" toml:"handshake_ms"`
	IdleMS      int `yaml:"idle_ms" toml:"idle_ms"`
	WriteMS     int `yaml:"write_ms" toml:"write_ms"`
}

type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Console    bool   `yaml:"console" toml:"console"`
	JSON       bool   `yaml:"json" toml:"json"`
}

type IndexConfig struct {
	// Path of the SQLite audit index; empty means <data>/index/lodestar.sqlite.
	Path     string `yaml:"path" toml:"path"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`
}

type IngestConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"` // empty disables
	Token    string `yaml:"token" toml:"token"`
	WorldID  string `yaml:"world_id" toml:"world_id"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Load reads path, picking the decoder from its extension. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(b), &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", name, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", name, err)
		}
	default:
		return cfg, fmt.Errorf("%s: unsupported config format", name)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		Listen: ListenConfig{
			TCP:    ":43594",
			HTTP:   ":8080",
			WSPath: "/v1/game",
		},
		World: WorldConfig{
			Capacity: 2000,
			TickMS:   600,
			Welcome:  "Welcome to Lodestar.",
		},
		Data: DataConfig{
			Dir:     "./data",
			Backend: "file",
			Journal: true,
		},
		Timeouts: TimeoutConfig{
			HandshakeMS: 10_000,
			IdleMS:      60_000,
			WriteMS:     5_000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Console:    true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Normalize trims strings and fills derived fields.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Listen.TCP = strings.TrimSpace(c.Listen.TCP)
	c.Listen.HTTP = strings.TrimSpace(c.Listen.HTTP)
	c.Listen.WSPath = strings.TrimSpace(c.Listen.WSPath)
	if c.Listen.WSPath != "" && !strings.HasPrefix(c.Listen.WSPath, "/") {
		c.Listen.WSPath = "/" + c.Listen.WSPath
	}
	c.Data.Dir = strings.TrimSpace(c.Data.Dir)
	c.Data.Backend = strings.ToLower(strings.TrimSpace(c.Data.Backend))
	if c.Data.Backend == "" {
		c.Data.Backend = "file"
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Index.Path = strings.TrimSpace(c.Index.Path)
	if c.Index.Path == "" && c.Data.Dir != "" {
		c.Index.Path = filepath.Join(c.Data.Dir, "index", "lodestar.sqlite")
	}
	c.Ingest.Endpoint = strings.TrimSpace(c.Ingest.Endpoint)
	c.Ingest.WorldID = strings.TrimSpace(c.Ingest.WorldID)
	if c.Ingest.WorldID == "" {
		c.Ingest.WorldID = "world_1"
	}
}

func (c Config) Validate() error {
	if c.Listen.TCP == "" && c.Listen.HTTP == "" {
		return fmt.Errorf("listen: at least one of tcp and http must be set")
	}
	if c.Listen.HTTP != "" && c.Listen.WSPath == "" {
		return fmt.Errorf("listen.ws_path must not be empty")
	}
	if c.World.Capacity <= 0 || c.World.Capacity > 0xffff {
		return fmt.Errorf("world.capacity must be in [1, 65535]")
	}
	if c.World.TickMS <= 0 {
		return fmt.Errorf("world.tick_ms must be > 0")
	}
	if len(c.World.Welcome) > 254 || strings.ContainsRune(c.World.Welcome, '\n') {
		return fmt.Errorf("world.welcome must be a single line under 255 bytes")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must not be empty")
	}
	switch c.Data.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("data.backend %q must be file or sqlite", c.Data.Backend)
	}
	if c.Timeouts.HandshakeMS < 0 || c.Timeouts.IdleMS < 0 || c.Timeouts.WriteMS < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	if c.Ingest.Endpoint != "" && !strings.HasPrefix(c.Ingest.Endpoint, "http://") && !strings.HasPrefix(c.Ingest.Endpoint, "https://") {
		return fmt.Errorf("ingest.endpoint must be an http(s) url")
	}
	return nil
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.World.TickMS) * time.Millisecond
}

func (t TimeoutConfig) Handshake() time.Duration {
	return time.Duration(t.HandshakeMS) * time.Millisecond
}

func (t TimeoutConfig) Idle() time.Duration { return time.Duration(t.IdleMS) * time.Millisecond }

func (t TimeoutConfig) Write() time.Duration { return time.Duration(t.WriteMS) * time.Millisecond }

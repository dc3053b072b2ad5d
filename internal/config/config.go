// Package config loads and validates the daemon configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Link    LinkConfig    `yaml:"link"`
	Gateway GatewayConfig `yaml:"gateway"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// ---- LINK ----

type LinkConfig struct {
	Addr              string `yaml:"addr"`
	ConnectTimeoutMs  int    `yaml:"connect_timeout_ms"`
	IOTimeoutMs       int    `yaml:"io_timeout_ms"`
	MaxLineBytes      int    `yaml:"max_line_bytes"`
	HealthIntervalSec int    `yaml:"health_interval_sec"`
	MaxBackoffSec     int    `yaml:"max_backoff_sec"`
	TickMs            int    `yaml:"tick_ms"`
}

func (l LinkConfig) ConnectTimeout() time.Duration { return time.Duration(l.ConnectTimeoutMs) * time.Millisecond }
func (l LinkConfig) IOTimeout() time.Duration      { return time.Duration(l.IOTimeoutMs) * time.Millisecond }
func (l LinkConfig) HealthInterval() time.Duration { return time.Duration(l.HealthIntervalSec) * time.Second }
func (l LinkConfig) MaxBackoff() time.Duration     { return time.Duration(l.MaxBackoffSec) * time.Second }
func (l LinkConfig) Tick() time.Duration           { return time.Duration(l.TickMs) * time.Millisecond }

// ---- GATEWAY ----

type GatewayConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ---- STORE ----

type StoreConfig struct {
	Path string `yaml:"path"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Link: LinkConfig{
			Addr:              "127.0.0.1:37393",
			ConnectTimeoutMs:  5000,
			IOTimeoutMs:       5,
			MaxLineBytes:      4096,
			HealthIntervalSec: 5,
			MaxBackoffSec:     30,
			TickMs:            50,
		},
		Gateway: GatewayConfig{ListenAddr: "127.0.0.1:8737"},
		Store:   StoreConfig{Path: "vmulink.db"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path, overlays it on the defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects structurally invalid values. An unreachable link addr is
// deliberately NOT a validation error: it is handled by the reconnect path
// at runtime.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Link.Addr); err != nil {
		errs = append(errs, fmt.Errorf("config: link.addr %q: %w", c.Link.Addr, err))
	}
	if c.Link.ConnectTimeoutMs <= 0 {
		errs = append(errs, errors.New("config: link.connect_timeout_ms must be > 0"))
	}
	if c.Link.IOTimeoutMs <= 0 {
		errs = append(errs, errors.New("config: link.io_timeout_ms must be > 0"))
	}
	if c.Link.MaxLineBytes < 64 {
		errs = append(errs, errors.New("config: link.max_line_bytes must be >= 64"))
	}
	if c.Link.HealthIntervalSec <= 0 {
		errs = append(errs, errors.New("config: link.health_interval_sec must be > 0"))
	}
	if c.Link.MaxBackoffSec <= 0 {
		errs = append(errs, errors.New("config: link.max_backoff_sec must be > 0"))
	}
	if c.Link.TickMs <= 0 {
		errs = append(errs, errors.New("config: link.tick_ms must be > 0"))
	}
	if _, _, err := net.SplitHostPort(c.Gateway.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("config: gateway.listen_addr %q: %w", c.Gateway.ListenAddr, err))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("config: store.path must not be empty"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug|info|warn|error", c.Log.Level))
	}
	return errors.Join(errs...)
}

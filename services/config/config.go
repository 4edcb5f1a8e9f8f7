// Package config loads the simulator configuration from YAML and publishes
// it as retained bus messages, so services pick their settings up from the
// bus rather than from files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/LeNguyenHoangNhan/circuitpython/bus"
)

const configPrefix = "config"

// Pin declares one simulated GPIO input and its level at power-on.
type Pin struct {
	Number  int  `yaml:"number"`
	Initial bool `yaml:"initial"`
}

// Config holds settings for the sleep simulator.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// StateFile persists the deep-sleep wake cause across restarts.
	StateFile string `yaml:"state_file"`
	// Pins are the simulated GPIO inputs available to pin alarms.
	Pins []Pin `yaml:"pins"`
	// HeartbeatSeconds is the uptime heartbeat publish interval.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

const (
	// DefaultConfigFilename is the default settings filename.
	DefaultConfigFilename = "sleepsim.yaml"

	// DefaultStateFilename is the default wake-state filename.
	DefaultStateFilename = "sleepsim-wakestate.yaml"

	defaultFilePermissions = 0o600
)

var (
	errConfigIsNotSet = errors.New("configuration is not set")
	errDuplicatePin   = errors.New("duplicate pin number")
	errNegativePin    = errors.New("pin numbers must be non-negative")
	errBadLogLevel    = errors.New("log level must be debug, info, warn or error")
	errBadHeartbeat   = errors.New("heartbeat interval must be positive")
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:         "info",
		StateFile:        DefaultStateFilename,
		Pins:             []Pin{{Number: 0}, {Number: 1}},
		HeartbeatSeconds: 1,
	}
}

// Load reads configuration from path and validates it. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}
	if path == "" {
		path = DefaultConfigFilename
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), data, defaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return errBadLogLevel
	}
	seen := map[int]bool{}
	for _, p := range cfg.Pins {
		if p.Number < 0 {
			return errNegativePin
		}
		if seen[p.Number] {
			return errDuplicatePin
		}
		seen[p.Number] = true
	}
	if cfg.HeartbeatSeconds <= 0 {
		return errBadHeartbeat
	}
	return nil
}

// Publish pushes each section as a retained message under config/<key>, so
// late-starting services still receive it.
func Publish(cfg *Config, conn *bus.Connection) error {
	if cfg == nil {
		return errConfigIsNotSet
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	conn.Publish(conn.NewMessage(bus.Topic{configPrefix, "log_level"}, cfg.LogLevel, true))
	conn.Publish(conn.NewMessage(bus.Topic{configPrefix, "state_file"}, cfg.StateFile, true))
	conn.Publish(conn.NewMessage(bus.Topic{configPrefix, "pins"}, cfg.Pins, true))
	conn.Publish(conn.NewMessage(bus.Topic{configPrefix, "heartbeat_interval"}, cfg.HeartbeatSeconds, true))
	return nil
}

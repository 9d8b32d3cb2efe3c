// Package config loads the logcatoteld YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks when --config is not given.
const DefaultPath = "logcatotel.yaml"

// Config is the on-disk configuration. Flags override individual fields.
type Config struct {
	LogsEndpoint  string            `yaml:"logs_endpoint"`
	ServiceName   string            `yaml:"service_name"`
	Headers       map[string]string `yaml:"headers,omitempty"`
	ExportTimeout time.Duration     `yaml:"export_timeout"`
	Socket        string            `yaml:"socket"`
	LogLevel      string            `yaml:"log_level"`
	IdleInterval  time.Duration     `yaml:"idle_interval"`
	StatsInterval time.Duration     `yaml:"stats_interval"`
	ADB           ADB               `yaml:"adb"`
	Replay        string            `yaml:"replay,omitempty"` // captured logcat file instead of a device
}

// ADB selects the device and buffers for `adb logcat`.
type ADB struct {
	Path    string   `yaml:"path"`
	Serial  string   `yaml:"serial,omitempty"`
	Buffers []string `yaml:"buffers,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ServiceName:   "android-logcat",
		ExportTimeout: 10 * time.Second,
		Socket:        "/tmp/logcatotel.sock",
		LogLevel:      "info",
		IdleInterval:  10 * time.Millisecond,
		StatsInterval: time.Second,
		ADB:           ADB{Path: "adb"},
	}
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML on top of Default. ${VAR} references in the endpoint
// and header values are expanded from the environment.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.LogsEndpoint = os.ExpandEnv(c.LogsEndpoint)
	for k, v := range c.Headers {
		c.Headers[k] = os.ExpandEnv(v)
	}
	return c, nil
}

// Save writes c as YAML, creating the parent directory.
func Save(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

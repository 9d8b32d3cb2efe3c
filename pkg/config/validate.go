package config

import (
	"fmt"
	"net/url"
	"slices"
)

// Buffers accepted by `adb logcat -b`.
var Buffers = []string{"main", "system", "radio", "events", "crash", "kernel", "security", "stats", "default", "all"}

// Validate checks the configuration for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.LogsEndpoint == "" {
		errs = append(errs, fmt.Errorf("logs_endpoint is required"))
	} else if u, err := url.Parse(c.LogsEndpoint); err != nil {
		errs = append(errs, fmt.Errorf("logs_endpoint: %w", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("logs_endpoint must be an absolute http(s) URL, got %q", c.LogsEndpoint))
	}

	if c.ServiceName == "" {
		errs = append(errs, fmt.Errorf("service_name must not be empty"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn, or error; got %q", c.LogLevel))
	}

	if c.IdleInterval <= 0 {
		errs = append(errs, fmt.Errorf("idle_interval must be positive, got %s", c.IdleInterval))
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("stats_interval must be positive, got %s", c.StatsInterval))
	}
	if c.ExportTimeout < 0 {
		errs = append(errs, fmt.Errorf("export_timeout must not be negative, got %s", c.ExportTimeout))
	}

	if c.Replay == "" && c.ADB.Path == "" {
		errs = append(errs, fmt.Errorf("adb.path is required unless replay is set"))
	}
	for _, b := range c.ADB.Buffers {
		if !slices.Contains(Buffers, b) {
			errs = append(errs, fmt.Errorf("adb.buffers: unknown buffer %q", b))
		}
	}

	return errs
}

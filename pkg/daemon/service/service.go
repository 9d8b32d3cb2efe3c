// Package service manages the logcatoteld systemd user service unit.
package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	unitName   = "logcatoteld.service"
	binaryName = "logcatoteld"
)

// UnitContents returns the unit file for the given binary and config path.
// logcatoteld reports readiness over sd_notify, hence Type=notify.
func UnitContents(binaryPath, configPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Android logcat to OpenTelemetry forwarder
Documentation=https://github.com/modoterra/logcatotel
After=network-online.target

[Service]
Type=notify
ExecStart=%s --config %s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`, binaryPath, configPath)
}

// UnitPath returns the path to the systemd user unit file.
func UnitPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user", unitName), nil
}

// Install writes the unit file, reloads systemd, and enables+starts the service.
func Install(configPath string) error {
	binaryPath, err := exec.LookPath(binaryName)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", binaryName, err)
	}
	binaryPath, err = filepath.Abs(binaryPath)
	if err != nil {
		return fmt.Errorf("cannot resolve %s path: %w", binaryName, err)
	}
	configPath, err = filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("cannot resolve config path: %w", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(UnitContents(binaryPath, configPath)), 0o644); err != nil {
		return fmt.Errorf("cannot write unit file: %w", err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", unitName)
}

// Uninstall stops+disables the service, removes the unit file, and reloads systemd.
func Uninstall() error {
	// Not running is fine.
	_ = systemctl("stop", unitName)
	_ = systemctl("disable", unitName)

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove unit file: %w", err)
	}
	return systemctl("daemon-reload")
}

// Status returns a human-readable status string.
func Status(socketPath string) string {
	var lines []string

	if _, err := os.Stat(socketPath); err == nil {
		lines = append(lines, "socket: active ("+socketPath+")")
	} else {
		lines = append(lines, "socket: inactive ("+socketPath+")")
	}

	unitPath, err := UnitPath()
	if err == nil {
		if _, statErr := os.Stat(unitPath); statErr == nil {
			lines = append(lines, "systemd user service: "+activeState())
		} else {
			lines = append(lines, "systemd user service: not installed")
		}
	}

	return strings.Join(lines, "\n")
}

// activeState prefers D-Bus and falls back to systemctl when the user bus is
// unreachable.
func activeState() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if st, err := QueryUnit(ctx); err == nil {
		return st.String()
	}
	out, err := exec.Command("systemctl", "--user", "is-active", unitName).Output()
	state := strings.TrimSpace(string(out))
	if err != nil && state == "" {
		state = "unknown"
	}
	return state
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl --user %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

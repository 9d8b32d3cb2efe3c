package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// newTestCmd gives each test fresh flag state bound to the package vars.
func newTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	configPath, logsEndpoint, socketPath, serial, replayPath, logLevel = "", "", "", "", "", ""
	buffers = nil

	cmd := &cobra.Command{Use: "logcatoteld", RunE: func(*cobra.Command, []string) error { return nil }}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "")
	f.StringVar(&logsEndpoint, "logs-endpoint", "", "")
	f.StringVar(&socketPath, "socket", "", "")
	f.StringVar(&serial, "serial", "", "")
	f.StringArrayVar(&buffers, "buffer", nil, "")
	f.StringVar(&replayPath, "replay", "", "")
	f.StringVar(&logLevel, "log-level", "", "")
	if err := f.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestResolveConfigFlagsOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := newTestCmd(t,
		"--logs-endpoint", "http://localhost:4318/v1/logs",
		"--serial", "emulator-5554",
		"--buffer", "main", "--buffer", "crash",
		"--log-level", "debug",
	)

	cfg, err := resolveConfig(cmd)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.LogsEndpoint != "http://localhost:4318/v1/logs" || cfg.ADB.Serial != "emulator-5554" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.ADB.Buffers) != 2 || cfg.ADB.Buffers[1] != "crash" {
		t.Errorf("buffers = %v", cfg.ADB.Buffers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestResolveConfigRequiresEndpoint(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := resolveConfig(newTestCmd(t))
	if err == nil || !strings.Contains(err.Error(), "logs_endpoint is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveConfigFlagOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	content := []byte(`logs_endpoint: http://file:4318/v1/logs
socket: /tmp/from-file.sock
adb:
  serial: FILE123
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newTestCmd(t, "--config", path, "--serial", "FLAG456")
	cfg, err := resolveConfig(cmd)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.ADB.Serial != "FLAG456" {
		t.Errorf("serial = %q, want flag value", cfg.ADB.Serial)
	}
	if cfg.Socket != "/tmp/from-file.sock" || cfg.LogsEndpoint != "http://file:4318/v1/logs" {
		t.Errorf("file values lost: %+v", cfg)
	}
}

func TestResolveConfigMissingFile(t *testing.T) {
	cmd := newTestCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := resolveConfig(cmd); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "logcatoteld ") {
		t.Errorf("version output = %q", buf.String())
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modoterra/logcatotel/internal/buildinfo"
	"github.com/modoterra/logcatotel/pkg/config"
	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/daemon"
	"github.com/modoterra/logcatotel/pkg/providers/adb"
	"github.com/modoterra/logcatotel/pkg/providers/replay"
	"github.com/modoterra/logcatotel/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath   string
	logsEndpoint string
	socketPath   string
	serial       string
	buffers      []string
	replayPath   string
	logLevel     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "logcatoteld",
	Short:        "Forward Android logcat to an OpenTelemetry collector",
	Long:         "logcatoteld runs `adb logcat -v epoch,uid`, parses every line and exports it as an OTLP log record.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "config file (default ./"+config.DefaultPath+" if present)")
	f.StringVar(&logsEndpoint, "logs-endpoint", "", "OTLP/HTTP logs endpoint URL")
	f.StringVar(&socketPath, "socket", "", "viewer socket path")
	f.StringVar(&serial, "serial", "", "device serial passed to adb -s")
	f.StringArrayVar(&buffers, "buffer", nil, "logcat buffer to read (repeatable)")
	f.StringVar(&replayPath, "replay", "", "replay a captured logcat file instead of a device (- for stdin)")
	f.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "logcatoteld %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

// resolveConfig loads the config file and applies flag overrides.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	switch {
	case configPath != "":
		c, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		if _, err := os.Stat(config.DefaultPath); err == nil {
			c, err := config.Load(config.DefaultPath)
			if err != nil {
				return nil, err
			}
			cfg = c
		}
	}

	f := cmd.Flags()
	if f.Changed("logs-endpoint") {
		cfg.LogsEndpoint = logsEndpoint
	}
	if f.Changed("socket") {
		cfg.Socket = socketPath
	}
	if f.Changed("serial") {
		cfg.ADB.Serial = serial
	}
	if f.Changed("buffer") {
		cfg.ADB.Buffers = buffers
	}
	if f.Changed("replay") {
		cfg.Replay = replayPath
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func openProducer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.Process, error) {
	if cfg.Replay != "" {
		return replay.Open(cfg.Replay)
	}
	return adb.Start(ctx, adb.Options{
		Path:    cfg.ADB.Path,
		Serial:  cfg.ADB.Serial,
		Buffers: cfg.ADB.Buffers,
		Args:    cfg.ADB.Args,
		Logger:  logger,
	})
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.LogsEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: buildinfo.Version,
		Headers:        cfg.Headers,
		ExportTimeout:  cfg.ExportTimeout,
	})
	if err != nil {
		logger.Error("telemetry setup failed", "err", err)
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	proc, err := openProducer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start producer", "err", err)
		return err
	}

	d := daemon.New(daemon.Options{
		SocketPath:    cfg.Socket,
		StatsInterval: cfg.StatsInterval,
		IdleInterval:  cfg.IdleInterval,
		Version:       buildinfo.Version,
	}, logger)

	logger.Info("starting logcatoteld", "version", buildinfo.Version, "endpoint", cfg.LogsEndpoint)
	if err := d.Run(ctx, proc, telemetry.Fanout(tp, d.LineEmitter()), sigCh); err != nil {
		logger.Error("ingest failed", "err", err)
		return err
	}
	return nil
}

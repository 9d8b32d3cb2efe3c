package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/logcatotel/internal/buildinfo"
	"github.com/modoterra/logcatotel/pkg/config"
	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/daemon/service"
	"github.com/modoterra/logcatotel/pkg/logcat"
	"github.com/modoterra/logcatotel/pkg/transport/uds"
	tuimodel "github.com/modoterra/logcatotel/pkg/tui/model"
)

var socketPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "logcatotel",
	Short: "Live viewer and tools for the logcatoteld forwarder",
	Long:  "logcatotel attaches to a running logcatoteld, checks its status, and parses captured logcat files offline.",
	RunE:  runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.Default().Socket, "daemon socket path")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(versionCmd)
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

// --- Watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream records from the daemon in a terminal UI",
	RunE:  runWatch,
}

func runWatch(_ *cobra.Command, _ []string) error {
	p := tea.NewProgram(tuimodel.New(socketPath), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodPing, nil)
		if err != nil {
			return err
		}
		var pong uds.PingResponse
		if err := resp.UnmarshalData(&pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (logcatoteld %s)\n", pong.Version)
		}
		return nil
	},
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingest state and counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodStatus, nil)
		if err != nil {
			return err
		}
		var snap core.Snapshot
		if err := resp.UnmarshalData(&snap); err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), snap, statusJSON)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func printStatus(w io.Writer, snap core.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	fmt.Fprintf(w, "%-12s %s\n", "STATE", snap.State)
	fmt.Fprintf(w, "%-12s %d\n", "PID", snap.Pid)
	fmt.Fprintf(w, "%-12s %d\n", "READ", snap.LinesRead)
	fmt.Fprintf(w, "%-12s %d\n", "PARSED", snap.Parsed)
	fmt.Fprintf(w, "%-12s %d\n", "REJECTED", snap.Rejected)
	fmt.Fprintf(w, "%-12s %d\n", "EMITTED", snap.Emitted)
	return nil
}

// --- Parse ---

var parseStrict bool

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse captured logcat output and print one JSON record per line",
	Long:  "Reads `adb logcat -v epoch,uid` output from file, or stdin when omitted or \"-\".",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) > 0 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		parsed, rejected, err := parseStream(in, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d parsed, %d rejected\n", parsed, rejected)
		if parseStrict && rejected > 0 {
			return fmt.Errorf("%d line(s) did not match the logcat format", rejected)
		}
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseStrict, "strict", false, "fail if any line is rejected")
}

func parseStream(r io.Reader, w io.Writer) (parsed, rejected int, err error) {
	br := bufio.NewReader(r)
	enc := json.NewEncoder(w)
	for {
		line, rerr := br.ReadString('\n')
		if line != "" {
			rec, perr := logcat.Parse(line)
			if perr != nil {
				rejected++
			} else {
				parsed++
				if err := enc.Encode(rec); err != nil {
					return parsed, rejected, err
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			return parsed, rejected, nil
		}
		if rerr != nil {
			return parsed, rejected, rerr
		}
	}
}

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage logcatotel.yaml",
}

var configInitOutput string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default logcatotel.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists", configInitOutput)
		}
		c := config.Default()
		c.LogsEndpoint = "http://localhost:4318/v1/logs"
		if err := config.Save(c, configInitOutput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", configInitOutput)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a logcatotel.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath
		if len(args) > 0 {
			path = args[0]
		}

		c, err := config.Load(path)
		if err != nil {
			return err
		}

		errs := config.Validate(c)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (endpoint %s)\n", path, c.LogsEndpoint)
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return fmt.Errorf("%s is invalid", path)
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", config.DefaultPath, "output file path")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

// --- Service ---

var serviceConfig string

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the logcatoteld systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Install(serviceConfig); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logcatoteld.service installed and started")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logcatoteld.service removed")
		return nil
	},
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the systemd user service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := service.Restart(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logcatoteld.service restarted")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show socket and service state",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), service.Status(socketPath))
	},
}

func init() {
	serviceInstallCmd.Flags().StringVar(&serviceConfig, "config", config.DefaultPath, "config file passed to logcatoteld")
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceRestartCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "logcatotel %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/logcat"
	"github.com/modoterra/logcatotel/pkg/transport/uds"
)

// Options configures a Daemon.
type Options struct {
	SocketPath    string
	StatsInterval time.Duration
	IdleInterval  time.Duration
	Version       string

	// Notify sends a systemd state string. Defaults to sd_notify, which is
	// a no-op outside systemd.
	Notify func(state string) error
}

// Daemon is the logcatoteld process: one ingest loop plus the local socket
// that viewers attach to.
type Daemon struct {
	server *uds.Server
	opts   Options
	stats  *Stats
	sup    atomic.Pointer[Supervisor]
	logger *slog.Logger
}

// New creates a new daemon instance.
func New(opts Options, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	if opts.Notify == nil {
		opts.Notify = sdNotify
	}
	d := &Daemon{
		server: uds.NewServer(opts.SocketPath, logger),
		opts:   opts,
		stats:  &Stats{},
		logger: logger,
	}
	d.registerHandlers()
	return d
}

func sdNotify(state string) error {
	_, err := sddaemon.SdNotify(false, state)
	return err
}

// Server returns the underlying UDS server.
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// Snapshot reports the loop state and counters.
func (d *Daemon) Snapshot() core.Snapshot {
	s := d.stats.Snapshot()
	s.State = "starting"
	if sup := d.sup.Load(); sup != nil {
		s.State = sup.State().String()
		s.Pid = sup.Pid()
	}
	return s
}

// LineEmitter broadcasts every record to attached viewers as a logcat.line
// event. Records are dropped when nobody is listening.
func (d *Daemon) LineEmitter() core.Emitter {
	return core.EmitterFunc(func(_ context.Context, line logcat.LogLine) {
		if d.server.Clients() == 0 {
			return
		}
		evt, err := uds.NewEvent(uds.EventLogcatLine, line)
		if err != nil {
			d.logger.Error("encode line event", "err", err)
			return
		}
		d.server.Broadcast(evt)
	})
}

// Run serves the socket and drives proc until it exits, interrupt fires, or
// ctx is cancelled. emitter receives every parsed record in read order.
func (d *Daemon) Run(ctx context.Context, proc core.Process, emitter core.Emitter, interrupt <-chan os.Signal) error {
	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvErr := make(chan error, 1)
	go func() { srvErr <- d.server.Start(srvCtx) }()
	select {
	case <-d.server.Ready():
	case err := <-srvErr:
		if err == nil {
			err = ctx.Err()
		}
		if kerr := proc.Kill(); kerr != nil {
			d.logger.Error("kill producer", "pid", proc.Pid(), "err", kerr)
		}
		return fmt.Errorf("start socket server: %w", err)
	}
	defer d.server.Shutdown()

	sup := NewSupervisor(proc, emitter,
		WithLogger(d.logger),
		WithIdleInterval(d.opts.IdleInterval),
		WithStats(d.stats),
		WithStateHook(func(st State) {
			d.logger.Debug("ingest state", "state", st)
		}),
	)
	d.sup.Store(sup)

	sl := NewStatsLoop(d, d.opts.StatsInterval, d.logger)
	go sl.Run(srvCtx)

	d.notify(sddaemon.SdNotifyReady)
	d.logger.Info("ingest started", "pid", proc.Pid(), "socket", d.opts.SocketPath)

	err := RunLoop(ctx, sup, interrupt, d.logger)

	d.notify(sddaemon.SdNotifyStopping)
	sl.tick()

	snap := d.Snapshot()
	d.logger.Info("ingest stopped",
		"lines", snap.LinesRead,
		"emitted", snap.Emitted,
		"rejected", snap.Rejected,
	)
	return err
}

func (d *Daemon) notify(state string) {
	if err := d.opts.Notify(state); err != nil {
		d.logger.Warn("sd_notify failed", "state", state, "err", err)
	}
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: d.opts.Version}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ uds.Message) (any, error) {
	return d.Snapshot(), nil
}

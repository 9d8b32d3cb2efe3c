package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/logcat"
)

// State is the lifecycle state of the ingest loop.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrKill wraps a failure to terminate the producer on shutdown.
var ErrKill = errors.New("kill producer process")

const defaultIdleInterval = 10 * time.Millisecond

// Supervisor reads a producer process line by line, parses each line and
// hands accepted records to an emitter, in read order.
type Supervisor struct {
	proc    core.Process
	emitter core.Emitter
	logger  *slog.Logger
	idle    time.Duration
	stats   *Stats
	onState func(State)
	state   atomic.Int32
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithIdleInterval sets how long to back off after an empty read while the
// process is still alive.
func WithIdleInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.idle = d
		}
	}
}

// WithStats shares a counter set with the caller.
func WithStats(st *Stats) Option {
	return func(s *Supervisor) { s.stats = st }
}

// WithStateHook is called on every state transition, from the loop goroutine.
func WithStateHook(fn func(State)) Option {
	return func(s *Supervisor) { s.onState = fn }
}

// NewSupervisor creates a supervisor that owns proc.
func NewSupervisor(proc core.Process, emitter core.Emitter, opts ...Option) *Supervisor {
	s := &Supervisor{
		proc:    proc,
		emitter: emitter,
		idle:    defaultIdleInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.stats == nil {
		s.stats = &Stats{}
	}
	return s
}

// State returns the current loop state. Safe for concurrent use.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Pid returns the producer's process ID.
func (s *Supervisor) Pid() int {
	return s.proc.Pid()
}

// Stats returns the loop counters.
func (s *Supervisor) Stats() *Stats {
	return s.stats
}

// Run drives the loop until the process exits on its own, ctx is
// cancelled, or a fatal error occurs. ctx is only polled between reads; a
// read in flight is never interrupted. Unless the process was seen to exit,
// it is killed before Run returns, and a kill failure is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StateRunning)

	exited, err := s.loop(ctx)
	if exited {
		s.setState(StateStopped)
		s.logger.Debug("ingest loop finished")
		return nil
	}

	if err == nil {
		s.setState(StateDraining)
	}
	if kerr := s.kill(); kerr != nil {
		if err == nil {
			err = kerr
		} else {
			err = errors.Join(err, kerr)
		}
	}
	s.setState(StateStopped)
	s.logger.Debug("ingest loop finished")
	return err
}

// loop returns true when the process was observed to exit on its own.
func (s *Supervisor) loop(ctx context.Context) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("cancellation observed, stopping producer")
			return false, nil
		default:
		}

		line, err := s.proc.ReadLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("read line: %w", err)
		}

		if line != "" {
			s.handle(ctx, line)
			runtime.Gosched()
			continue
		}

		s.stats.emptyReads.Add(1)
		exited, err := s.proc.TryWait()
		if err != nil {
			s.logger.Error("error attempting to wait", "err", err)
			return false, fmt.Errorf("probe exit status: %w", err)
		}
		if exited {
			s.logger.Warn("producer already exited", "pid", s.proc.Pid())
			return true, nil
		}
		s.pause(ctx)
	}
}

func (s *Supervisor) handle(ctx context.Context, line string) {
	s.stats.read.Add(1)

	rec, err := logcat.Parse(line)
	if err != nil {
		s.stats.rejected.Add(1)
		s.logger.Debug("failed to parse line", "line", line, "err", err)
		return
	}
	s.stats.parsed.Add(1)

	s.emitter.Emit(ctx, rec)
	s.stats.emitted.Add(1)
}

// pause yields for the idle interval after an empty read, returning early
// if ctx is cancelled so the next poll sees it promptly.
func (s *Supervisor) pause(ctx context.Context) {
	t := time.NewTimer(s.idle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Supervisor) kill() error {
	pid := s.proc.Pid()
	if err := s.proc.Kill(); err != nil {
		s.logger.Error("kill failed", "pid", pid, "err", err)
		return fmt.Errorf("%w %d: %w", ErrKill, pid, err)
	}
	s.logger.Debug("killed producer", "pid", pid)
	return nil
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	if s.onState != nil {
		s.onState(st)
	}
}

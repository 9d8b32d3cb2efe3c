package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/transport/uds"
)

// StatsLoop samples the daemon's counters every interval and broadcasts an
// ingest.stats event when they changed.
type StatsLoop struct {
	daemon   *Daemon
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	prev core.Snapshot
}

// NewStatsLoop creates a stats loop for the given daemon.
func NewStatsLoop(d *Daemon, interval time.Duration, logger *slog.Logger) *StatsLoop {
	return &StatsLoop{daemon: d, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (sl *StatsLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(sl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sl.tick()
		}
	}
}

// tick reports whether an event was broadcast.
func (sl *StatsLoop) tick() bool {
	snap := sl.daemon.Snapshot()

	sl.mu.Lock()
	changed := snap.Changed(sl.prev)
	sl.prev = snap
	sl.mu.Unlock()

	if !changed {
		return false
	}
	evt, err := uds.NewEvent(uds.EventIngestStats, snap)
	if err != nil {
		sl.logger.Error("encode stats event", "err", err)
		return false
	}
	sl.daemon.Server().Broadcast(evt)
	sl.logger.Debug("ingest stats",
		"state", snap.State,
		"lines", snap.LinesRead,
		"emitted", snap.Emitted,
		"rejected", snap.Rejected,
	)
	return true
}

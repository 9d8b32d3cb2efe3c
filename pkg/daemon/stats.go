package daemon

import (
	"sync/atomic"

	"github.com/modoterra/logcatotel/pkg/core"
)

// Stats counts ingest loop activity. The loop is the only writer; readers
// may take snapshots from any goroutine.
type Stats struct {
	read       atomic.Uint64
	parsed     atomic.Uint64
	rejected   atomic.Uint64
	emitted    atomic.Uint64
	emptyReads atomic.Uint64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() core.Snapshot {
	return core.Snapshot{
		LinesRead:  s.read.Load(),
		Parsed:     s.parsed.Load(),
		Rejected:   s.rejected.Load(),
		Emitted:    s.emitted.Load(),
		EmptyReads: s.emptyReads.Load(),
	}
}

package core

// Snapshot is a point-in-time view of the ingest loop counters.
type Snapshot struct {
	State      string `json:"state"`
	Pid        int    `json:"pid,omitempty"`
	LinesRead  uint64 `json:"lines_read"`
	Parsed     uint64 `json:"parsed"`
	Rejected   uint64 `json:"rejected"`
	Emitted    uint64 `json:"emitted"`
	EmptyReads uint64 `json:"empty_reads"`
}

// Changed reports whether anything an operator would care about moved.
// Empty reads are ignored; they tick constantly while the device is idle.
func (s Snapshot) Changed(prev Snapshot) bool {
	return s.State != prev.State ||
		s.Pid != prev.Pid ||
		s.LinesRead != prev.LinesRead ||
		s.Parsed != prev.Parsed ||
		s.Rejected != prev.Rejected ||
		s.Emitted != prev.Emitted
}

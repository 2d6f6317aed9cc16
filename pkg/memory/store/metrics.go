package store

import "sync/atomic"

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	inserted    atomic.Int64
	reinforced  atomic.Int64
	refreshed   atomic.Int64
	softMarked  atomic.Int64
	hardDeleted atomic.Int64
	rejected    atomic.Int64
}

func (m *Metrics) IncInserted()         { m.inserted.Add(1) }
func (m *Metrics) IncReinforced()       { m.reinforced.Add(1) }
func (m *Metrics) IncRefreshed()        { m.refreshed.Add(1) }
func (m *Metrics) IncSoftMarked()       { m.softMarked.Add(1) }
func (m *Metrics) IncHardDeleted(n int) { m.hardDeleted.Add(int64(n)) }
func (m *Metrics) IncRejected()         { m.rejected.Add(1) }

// MetricsSnapshot holds the current counter values for reporting/logging.
type MetricsSnapshot struct {
	Inserted    int64 `json:"inserted"`
	Reinforced  int64 `json:"reinforced"`
	Refreshed   int64 `json:"refreshed"`
	SoftMarked  int64 `json:"soft_marked"`
	HardDeleted int64 `json:"hard_deleted"`
	Rejected    int64 `json:"rejected"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Inserted:    m.inserted.Load(),
		Reinforced:  m.reinforced.Load(),
		Refreshed:   m.refreshed.Load(),
		SoftMarked:  m.softMarked.Load(),
		HardDeleted: m.hardDeleted.Load(),
		Rejected:    m.rejected.Load(),
	}
}

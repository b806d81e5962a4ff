package cache

import "sync/atomic"

// Stats collects cache operation counters. All methods are safe for
// concurrent use.
type Stats struct {
	hit      atomic.Uint64
	miss     atomic.Uint64
	insert   atomic.Uint64
	delete   atomic.Uint64
	txnRead  atomic.Uint64
	txnWrite atomic.Uint64
}

// StatsSnapshot is a point-in-time snapshot of cache statistics.
type StatsSnapshot struct {
	Hit      uint64
	Miss     uint64
	Insert   uint64
	Delete   uint64
	TxnRead  uint64
	TxnWrite uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hit:      s.hit.Load(),
		Miss:     s.miss.Load(),
		Insert:   s.insert.Load(),
		Delete:   s.delete.Load(),
		TxnRead:  s.txnRead.Load(),
		TxnWrite: s.txnWrite.Load(),
	}
}

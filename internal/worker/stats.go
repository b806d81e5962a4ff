package worker

import "sync/atomic"

// Stats collects worker-level counters. Mirrors internal/server.DNSStats's
// atomic-counter-plus-Snapshot shape.
type Stats struct {
	concurrent atomic.Int64
	created    atomic.Uint64
	completed  atomic.Uint64
	timeouts   atomic.Uint64
	coalesced  atomic.Uint64
	iterLimit  atomic.Uint64
	dropped    atomic.Uint64
}

// StatsSnapshot is a point-in-time read of Stats.
type StatsSnapshot struct {
	Concurrent int64
	Created    uint64
	Completed  uint64
	Timeouts   uint64
	Coalesced  uint64
	IterLimit  uint64
	Dropped    uint64
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Concurrent: s.concurrent.Load(),
		Created:    s.created.Load(),
		Completed:  s.completed.Load(),
		Timeouts:   s.timeouts.Load(),
		Coalesced:  s.coalesced.Load(),
		IterLimit:  s.iterLimit.Load(),
		Dropped:    s.dropped.Load(),
	}
}

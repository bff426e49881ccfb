package fabric

import (
	"sync/atomic"

	"firestige.xyz/lansim/internal/metrics"
)

// Stats contains per-switch packet counters.
type Stats struct {
	// Packet counters (using atomic for thread-safety)
	Received  atomic.Uint64
	Forwarded atomic.Uint64
	Fallback  atomic.Uint64
	Dropped   atomic.Uint64
	Malformed atomic.Uint64
	Aborted   atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Received  uint64
	Forwarded uint64
	Fallback  uint64
	Dropped   uint64
	Malformed uint64
	Aborted   uint64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Received:  s.Received.Load(),
		Forwarded: s.Forwarded.Load(),
		Fallback:  s.Fallback.Load(),
		Dropped:   s.Dropped.Load(),
		Malformed: s.Malformed.Load(),
		Aborted:   s.Aborted.Load(),
	}
}

// count bumps the counter for result and the matching Prometheus series.
func (s *Stats) count(result string) {
	switch result {
	case metrics.ResultForwarded:
		s.Forwarded.Add(1)
	case metrics.ResultFallback:
		s.Fallback.Add(1)
	case metrics.ResultDropped:
		s.Dropped.Add(1)
	case metrics.ResultMalformed:
		s.Malformed.Add(1)
	case metrics.ResultAborted:
		s.Aborted.Add(1)
	}
	metrics.SwitchPacketsTotal.WithLabelValues(result).Inc()
}

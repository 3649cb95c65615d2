package merge

import "sync/atomic"

// StageStats is a snapshot of a stage's counters.
type StageStats struct {
	Forwarded  uint64
	Suppressed uint64
	Bypassed   uint64
	Full       uint64
}

type stageCounters struct {
	forwarded  atomic.Uint64
	suppressed atomic.Uint64
	bypassed   atomic.Uint64
	full       atomic.Uint64
}

func (c *stageCounters) snapshot() StageStats {
	return StageStats{
		Forwarded:  c.forwarded.Load(),
		Suppressed: c.suppressed.Load(),
		Bypassed:   c.bypassed.Load(),
		Full:       c.full.Load(),
	}
}

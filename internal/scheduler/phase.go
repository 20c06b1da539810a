package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/kozaktomas/class-attendance/internal/config"
)

// PersistPolicy decides whether a processed job's matches are written to
// the attendance store.
type PersistPolicy string

const (
	// PersistAlways writes matches even when processing ran over budget.
	PersistAlways PersistPolicy = "always"
	// PersistWithinBudget writes matches only when processing finished
	// inside the phase budget.
	PersistWithinBudget PersistPolicy = "within_budget"
	// PersistMatchOnly writes matches whenever one was found; budget
	// overruns are tolerated but a matchless frame leaves no trace.
	PersistMatchOnly PersistPolicy = "match_only"
)

// Phase is the processing configuration derived from how old a session is.
// It is resolved once, at enqueue time, and travels with the job: a frame
// captured early in a session keeps its strict threshold even when the
// queue delays it past the bucket boundary.
type Phase struct {
	Rank      int           // 1 = highest priority, dequeued first
	Threshold float64       // minimum similarity for a match
	Budget    time.Duration // processing time budget per job
	Workers   int           // concurrent jobs allowed for this phase
	Persist   PersistPolicy
}

// Schedule maps elapsed session time onto phases.
type Schedule struct {
	buckets []bucket
}

type bucket struct {
	from  time.Duration
	phase Phase
}

// NewSchedule builds a schedule from phase configuration. Buckets must
// start at zero and be strictly increasing.
func NewSchedule(phases []config.PhaseConfig) (*Schedule, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("at least one phase bucket is required")
	}

	sorted := append([]config.PhaseConfig(nil), phases...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FromMinutes < sorted[j].FromMinutes
	})
	if sorted[0].FromMinutes != 0 {
		return nil, fmt.Errorf("first phase bucket must start at minute 0, starts at %d", sorted[0].FromMinutes)
	}

	buckets := make([]bucket, 0, len(sorted))
	for i, p := range sorted {
		if i > 0 && p.FromMinutes == sorted[i-1].FromMinutes {
			return nil, fmt.Errorf("duplicate phase bucket at minute %d", p.FromMinutes)
		}
		if p.Rank < 1 || p.Threshold <= 0 || p.BudgetSeconds <= 0 || p.Workers < 1 {
			return nil, fmt.Errorf("invalid phase bucket at minute %d: %+v", p.FromMinutes, p)
		}
		policy := PersistPolicy(p.Persist)
		switch policy {
		case PersistAlways, PersistWithinBudget, PersistMatchOnly:
		default:
			return nil, fmt.Errorf("unknown persist policy %q at minute %d", p.Persist, p.FromMinutes)
		}
		buckets = append(buckets, bucket{
			from: time.Duration(p.FromMinutes) * time.Minute,
			phase: Phase{
				Rank:      p.Rank,
				Threshold: p.Threshold,
				Budget:    time.Duration(p.BudgetSeconds) * time.Second,
				Workers:   p.Workers,
				Persist:   policy,
			},
		})
	}

	return &Schedule{buckets: buckets}, nil
}

// PhaseFor returns the phase for a session of the given age: the last
// bucket whose start has been reached. Negative elapsed times (clock skew
// on capture timestamps) resolve to the first bucket.
func (s *Schedule) PhaseFor(elapsed time.Duration) Phase {
	phase := s.buckets[0].phase
	for _, b := range s.buckets[1:] {
		if elapsed < b.from {
			break
		}
		phase = b.phase
	}
	return phase
}

// MaxRank returns the lowest priority rank in the schedule.
func (s *Schedule) MaxRank() int {
	max := 0
	for _, b := range s.buckets {
		if b.phase.Rank > max {
			max = b.phase.Rank
		}
	}
	return max
}

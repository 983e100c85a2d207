package taskqueue

import (
	"sync"
	"time"
)

type Outcome string

const (
	OutcomeAcked   Outcome = "acked"
	OutcomeRetried Outcome = "retried"
	OutcomeFailed  Outcome = "failed"
)

// MetricsCollector observes every settled delivery attempt.
type MetricsCollector interface {
	RecordDelivery(queue string, attempt int, outcome Outcome, duration time.Duration)
}

type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordDelivery(string, int, Outcome, time.Duration) {}

// Stats counts outcomes in memory. It backs the worker health endpoint.
type Stats struct {
	mu       sync.Mutex
	counts   map[Outcome]uint64
	lastSeen time.Time
}

func NewStats() *Stats {
	return &Stats{counts: make(map[Outcome]uint64)}
}

func (s *Stats) RecordDelivery(_ string, _ int, outcome Outcome, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[outcome]++
	s.lastSeen = time.Now()
}

// Snapshot returns a copy of the outcome counters and the last delivery time.
func (s *Stats) Snapshot() (map[Outcome]uint64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Outcome]uint64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out, s.lastSeen
}

package strategy

import (
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/domresolve/selector"
)

// Metrics accumulates per-strategy-type resolution counters.
type Metrics struct {
	mu      sync.Mutex
	perType map[selector.StrategyType]*typeCounters
}

type typeCounters struct {
	attempts  int64
	successes int64
	totalNs   int64
}

// TypeSnapshot is a point-in-time view of one strategy type's counters.
type TypeSnapshot struct {
	Type        selector.StrategyType `json:"type"`
	Attempts    int64                 `json:"attempts"`
	Successes   int64                 `json:"successes"`
	SuccessRate float64               `json:"success_rate"`
	AvgLatency  time.Duration         `json:"avg_latency"`
}

// NewMetrics returns an empty metrics accumulator.
func NewMetrics() *Metrics {
	return &Metrics{perType: make(map[selector.StrategyType]*typeCounters)}
}

// Record registers one attempt outcome.
func (m *Metrics) Record(t selector.StrategyType, success bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.perType[t]
	if c == nil {
		c = &typeCounters{}
		m.perType[t] = c
	}
	c.attempts++
	if success {
		c.successes++
	}
	c.totalNs += elapsed.Nanoseconds()
}

// Snapshot returns the counters sorted by type name.
func (m *Metrics) Snapshot() []TypeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TypeSnapshot, 0, len(m.perType))
	for t, c := range m.perType {
		s := TypeSnapshot{Type: t, Attempts: c.attempts, Successes: c.successes}
		if c.attempts > 0 {
			s.SuccessRate = float64(c.successes) / float64(c.attempts)
			s.AvgLatency = time.Duration(c.totalNs / c.attempts)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

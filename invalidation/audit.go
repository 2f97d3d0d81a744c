package invalidation

import (
	"sync"
	"time"

	"github.com/hazyhaar/domresolve/idgen"
)

// Record is one audited invalidation.
type Record struct {
	ID       string    `json:"id"`
	Rule     string    `json:"rule"`
	Strategy Strategy  `json:"strategy"`
	Event    Event     `json:"event"`
	Keys     []string  `json:"keys,omitempty"`
	At       time.Time `json:"at"`
}

// Audit keeps a bounded in-memory ring of invalidation records, newest
// overwriting oldest.
type Audit struct {
	mu      sync.Mutex
	records []Record
	head    int
	count   int
}

// NewAudit builds an audit trail retaining up to capacity records;
// capacity <= 0 defaults to 512.
func NewAudit(capacity int) *Audit {
	if capacity <= 0 {
		capacity = 512
	}
	return &Audit{records: make([]Record, capacity)}
}

// Add appends a record, stamping ID and At.
func (a *Audit) Add(rule string, strategy Strategy, ev Event, keys []string) Record {
	rec := Record{
		ID:       idgen.New(),
		Rule:     rule,
		Strategy: strategy,
		Event:    ev,
		Keys:     keys,
		At:       time.Now(),
	}
	a.mu.Lock()
	a.records[(a.head+a.count)%len(a.records)] = rec
	if a.count < len(a.records) {
		a.count++
	} else {
		a.head = (a.head + 1) % len(a.records)
	}
	a.mu.Unlock()
	return rec
}

// Records returns the retained records oldest first.
func (a *Audit) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, a.count)
	for i := 0; i < a.count; i++ {
		out[i] = a.records[(a.head+i)%len(a.records)]
	}
	return out
}

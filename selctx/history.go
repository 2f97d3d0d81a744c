package selctx

import (
	"sync"
	"time"
)

// NavigationEvent is one observed page-level event.
type NavigationEvent struct {
	Type     string    `json:"type"` // "navigate", "dom_state", "tab_switch"
	URL      string    `json:"url,omitempty"`
	Path     string    `json:"path,omitempty"`
	DOMState DOMState  `json:"dom_state,omitempty"`
	TabID    string    `json:"tab_id,omitempty"`
	At       time.Time `json:"at"`
}

// ContextTransition records one accepted context change.
type ContextTransition struct {
	FromPath  string    `json:"from_path"`
	ToPath    string    `json:"to_path"`
	FromState DOMState  `json:"from_state,omitempty"`
	ToState   DOMState  `json:"to_state,omitempty"`
	Evicted   bool      `json:"evicted"`
	At        time.Time `json:"at"`
}

// History keeps bounded, append-only ring buffers of navigation events
// and context transitions. Oldest entries are overwritten when full.
type History struct {
	mu          sync.Mutex
	events      []NavigationEvent
	eventHead   int
	eventCount  int
	transitions []ContextTransition
	transHead   int
	transCount  int
}

// NewHistory creates a History with the given per-buffer capacity.
// capacity <= 0 defaults to 256.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 256
	}
	return &History{
		events:      make([]NavigationEvent, capacity),
		transitions: make([]ContextTransition, capacity),
	}
}

// RecordEvent appends a navigation event, stamping At when zero.
func (h *History) RecordEvent(ev NavigationEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[h.eventHead] = ev
	h.eventHead = (h.eventHead + 1) % len(h.events)
	if h.eventCount < len(h.events) {
		h.eventCount++
	}
}

// RecordTransition appends a context transition, stamping At when zero.
func (h *History) RecordTransition(tr ContextTransition) {
	if tr.At.IsZero() {
		tr.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions[h.transHead] = tr
	h.transHead = (h.transHead + 1) % len(h.transitions)
	if h.transCount < len(h.transitions) {
		h.transCount++
	}
}

// Events returns the recorded events, oldest first.
func (h *History) Events() []NavigationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]NavigationEvent, 0, h.eventCount)
	start := h.eventHead - h.eventCount
	for i := 0; i < h.eventCount; i++ {
		out = append(out, h.events[mod(start+i, len(h.events))])
	}
	return out
}

// Transitions returns the recorded transitions, oldest first.
func (h *History) Transitions() []ContextTransition {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ContextTransition, 0, h.transCount)
	start := h.transHead - h.transCount
	for i := 0; i < h.transCount; i++ {
		out = append(out, h.transitions[mod(start+i, len(h.transitions))])
	}
	return out
}

func mod(i, n int) int {
	return ((i % n) + n) % n
}

// Package invalidation decides when cached selector data must go.
// Cache events (DOM state changes, context switches, tab switches,
// content mutations) are matched against rules; each matching rule
// evicts immediately, schedules a delayed eviction, evicts a selective
// subset, or predictively evicts related contexts. Every eviction is
// recorded in a bounded audit trail.
package invalidation

import "time"

// Strategy names how a matched rule carries out its eviction.
type Strategy string

const (
	// StrategyImmediate evicts synchronously inside Apply.
	StrategyImmediate Strategy = "immediate"
	// StrategyDelayed schedules the eviction after a grace period.
	StrategyDelayed Strategy = "delayed"
	// StrategySelective evicts only the subset the rule targets.
	StrategySelective Strategy = "selective"
	// StrategyPredictive evicts contexts likely to go stale next.
	StrategyPredictive Strategy = "predictive"
)

// EventType classifies a cache-relevant occurrence.
type EventType string

const (
	EventDOMStateChange EventType = "dom_state_change"
	EventContextChange  EventType = "context_change"
	EventTabSwitch      EventType = "tab_switch"
	EventNavigation     EventType = "navigation"
	EventContentChange  EventType = "content_change"
	EventManual         EventType = "manual"
)

// Event describes one occurrence for rule matching. Only the fields
// relevant to the event type are set.
type Event struct {
	Type EventType `json:"type"`

	FromPath string `json:"from_path,omitempty"`
	ToPath   string `json:"to_path,omitempty"`

	FromState string `json:"from_state,omitempty"`
	ToState   string `json:"to_state,omitempty"`

	FromTabID string `json:"from_tab_id,omitempty"`
	ToTabID   string `json:"to_tab_id,omitempty"`

	// ContentHint carries a content-change description (a changed CSS
	// class, a text snippet) for predictive matching.
	ContentHint string `json:"content_hint,omitempty"`

	At time.Time `json:"at"`
}

// Rule couples an event predicate with eviction targets and a strategy.
type Rule struct {
	Name     string
	Strategy Strategy
	// Delay applies to StrategyDelayed rules; zero uses the manager's
	// default grace period.
	Delay time.Duration
	// Matches reports whether the rule fires for the event.
	Matches func(Event) bool
	// Targets returns the key fragments to evict. Empty means nothing
	// to do even though the rule matched.
	Targets func(Event) []string
}

package selector

import "time"

// ElementInfo is the extracted description of a resolved element.
type ElementInfo struct {
	Tag          string            `json:"tag"`
	Text         string            `json:"text,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	DOMPath      string            `json:"dom_path,omitempty"`
	Visible      bool              `json:"visible"`
	Interactable bool              `json:"interactable"`
}

// ValidationOutcome records how one validation rule scored the element.
type ValidationOutcome struct {
	Rule   string   `json:"rule"`
	Kind   RuleKind `json:"kind"`
	Passed bool     `json:"passed"`
	Score  float64  `json:"score"`
	Weight float64  `json:"weight"`
}

// SelectorResult is the immutable outcome of one resolution attempt.
// It never carries an error: failures are expressed through Success=false
// and a readable FailureReason.
type SelectorResult struct {
	SelectorName   string              `json:"selector_name"`
	StrategyUsed   StrategyType        `json:"strategy_used,omitempty"`
	StrategyID     string              `json:"strategy_id,omitempty"`
	Element        *ElementInfo        `json:"element,omitempty"`
	Confidence     float64             `json:"confidence"`
	ResolutionTime time.Duration       `json:"resolution_time"`
	Validations    []ValidationOutcome `json:"validations,omitempty"`
	Success        bool                `json:"success"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	CandidatesSeen int                 `json:"candidates_seen,omitempty"`
	FromCache      bool                `json:"from_cache,omitempty"`
}

// Failure builds a failed result for the given selector and strategy.
func Failure(selectorName string, strategy StrategyType, reason string, elapsed time.Duration) SelectorResult {
	return SelectorResult{
		SelectorName:   selectorName,
		StrategyUsed:   strategy,
		ResolutionTime: elapsed,
		Success:        false,
		FailureReason:  reason,
	}
}

// Package strategy implements the element-resolution engine: six
// independent location heuristics behind one contract, a factory that
// builds them from declarative configuration, confidence scoring, and
// per-strategy metrics.
//
// A strategy attempt never returns an error and never panics. Failures
// come back as a SelectorResult with Success=false and a readable
// reason; per-candidate probe errors are swallowed and the candidate is
// skipped.
package strategy

import (
	"context"
	"time"

	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/selector"
)

// Strategy is one location heuristic bound to its configuration.
type Strategy interface {
	// Config returns the configuration the strategy was built from.
	Config() selector.StrategyConfig
	// AttemptResolution tries to locate an element satisfying sel.
	AttemptResolution(ctx context.Context, sel *selector.SemanticSelector, q domquery.Capability) selector.SelectorResult
}

// probe is everything we learn about one candidate element. Probing is
// best-effort: any per-candidate error rejects the candidate.
type probe struct {
	el           domquery.Element
	tag          string
	text         string
	attrs        map[string]string
	visible      bool
	interactable bool
}

// probeElement inspects a candidate. Returns nil when any probe step
// fails or the element is detached: the candidate is simply skipped.
func probeElement(ctx context.Context, el domquery.Element) *probe {
	if !el.Attached(ctx) {
		return nil
	}
	tag, err := el.Tag(ctx)
	if err != nil {
		return nil
	}
	text, err := el.Text(ctx)
	if err != nil {
		return nil
	}
	attrs, err := el.Attributes(ctx)
	if err != nil {
		return nil
	}
	visible, err := el.Visible(ctx)
	if err != nil {
		return nil
	}
	interactable, err := el.Interactable(ctx)
	if err != nil {
		interactable = false
	}
	return &probe{
		el: el, tag: tag, text: text, attrs: attrs,
		visible: visible, interactable: interactable,
	}
}

// scanCandidates walks elements in document order and keeps the
// highest-scoring candidate that is attached and visible. Ties keep
// the first occurrence: deterministic, but sensitive to the query
// capability's document ordering.
func scanCandidates(ctx context.Context, els []domquery.Element, score func(*probe) float64) (best *probe, bestScore float64, seen int) {
	for _, el := range els {
		p := probeElement(ctx, el)
		if p == nil {
			continue
		}
		seen++
		if !p.visible {
			continue
		}
		s := score(p)
		if s <= 0 {
			continue
		}
		if best == nil || s > bestScore {
			best, bestScore = p, s
		}
	}
	return best, bestScore, seen
}

// buildInfo extracts the reportable element description from a probe.
func buildInfo(ctx context.Context, p *probe) *selector.ElementInfo {
	path, err := p.el.DOMPath(ctx)
	if err != nil {
		path = ""
	}
	return &selector.ElementInfo{
		Tag:          p.tag,
		Text:         p.text,
		Attributes:   p.attrs,
		DOMPath:      path,
		Visible:      p.visible,
		Interactable: p.interactable,
	}
}

// finish assembles a successful result: base confidence from the
// validation rules and element state, the strategy-specific multiplier,
// then the performance penalty, each stage clipped to [0,1].
func finish(ctx context.Context, sel *selector.SemanticSelector, cfg selector.StrategyConfig, p *probe, multiplier float64, tagAppropriate bool, start time.Time, seen int) selector.SelectorResult {
	content, outcomes := selector.ContentScore(sel.ValidationRules, p.text)
	conf := baseConfidence(scoreInputs{
		content:            content,
		visible:            p.visible,
		interactable:       p.interactable,
		expectsInteraction: expectsInteraction(sel),
		tagAppropriate:     tagAppropriate,
	})
	conf = clip01(conf * multiplier)
	elapsed := time.Since(start)
	conf = clip01(conf - performancePenalty(elapsed))

	return selector.SelectorResult{
		SelectorName:   sel.Name,
		StrategyUsed:   cfg.Type,
		StrategyID:     cfg.ID,
		Element:        buildInfo(ctx, p),
		Confidence:     conf,
		ResolutionTime: elapsed,
		Validations:    outcomes,
		Success:        true,
		CandidatesSeen: seen,
	}
}

// fail wraps selector.Failure with the strategy id and candidate count.
func fail(name string, cfg selector.StrategyConfig, reason string, elapsed time.Duration, seen int) selector.SelectorResult {
	r := selector.Failure(name, cfg.Type, reason, elapsed)
	r.StrategyID = cfg.ID
	r.CandidatesSeen = seen
	return r
}

// expectsInteraction reports whether the selector is after an element
// the user interacts with; only then does a non-interactable candidate
// cost confidence.
func expectsInteraction(sel *selector.SemanticSelector) bool {
	return sel.Metadata["interactive"] == "true"
}

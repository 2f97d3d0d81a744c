package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/selector"
)

// locator resolves a raw CSS selector or XPath expression verbatim.
// These are the escape hatch: fast and precise, but brittle across
// page redesigns, so confidence starts high and decays with expression
// complexity instead of being rebuilt from element evidence.
type locator struct {
	cfg   selector.StrategyConfig
	xpath bool
}

func (s *locator) Config() selector.StrategyConfig { return s.cfg }

func (s *locator) AttemptResolution(ctx context.Context, sel *selector.SemanticSelector, q domquery.Capability) selector.SelectorResult {
	start := time.Now()

	var (
		els []domquery.Element
		err error
	)
	if s.xpath {
		els, err = q.QueryXPath(ctx, s.cfg.Expression)
	} else {
		els, err = q.QueryAll(ctx, s.cfg.Expression)
	}
	if err != nil {
		return fail(sel.Name, s.cfg, fmt.Sprintf("expression failed: %v", err), time.Since(start), 0)
	}

	// First attached visible match in document order.
	var best *probe
	seen := 0
	for _, el := range els {
		p := probeElement(ctx, el)
		if p == nil {
			continue
		}
		seen++
		if p.visible {
			best = p
			break
		}
	}
	if best == nil {
		return fail(sel.Name, s.cfg,
			fmt.Sprintf("no visible element for expression %q", s.cfg.Expression),
			time.Since(start), seen)
	}

	conf := 0.9 * complexityMultiplier(s.cfg.Expression, s.xpath)
	elapsed := time.Since(start)
	conf = clip01(conf - performancePenalty(elapsed))

	// Validation outcomes are reported for observability but do not
	// reweigh the fixed base.
	_, outcomes := selector.ContentScore(sel.ValidationRules, best.text)

	return selector.SelectorResult{
		SelectorName:   sel.Name,
		StrategyUsed:   s.cfg.Type,
		StrategyID:     s.cfg.ID,
		Element:        buildInfo(ctx, best),
		Confidence:     conf,
		ResolutionTime: elapsed,
		Validations:    outcomes,
		Success:        true,
		CandidatesSeen: seen,
	}
}

// complexityMultiplier discounts 5% per structural feature: every
// combinator hop, pseudo-class, and function call is one more thing a
// redesign can break.
func complexityMultiplier(expr string, xpath bool) float64 {
	features := 0
	if xpath {
		features += strings.Count(expr, "/") - 1
		features += strings.Count(expr, "[")
		features += strings.Count(expr, "(")
	} else {
		// Combinator hops, whatever the combinator.
		flat := strings.NewReplacer(">", " ", "~", " ", "+", " ").Replace(expr)
		features += len(strings.Fields(flat)) - 1
		features += strings.Count(expr, ":")
		features += strings.Count(expr, "[")
	}
	if features < 0 {
		features = 0
	}
	mult := 1.0
	for i := 0; i < features; i++ {
		mult *= 0.95
	}
	return mult
}

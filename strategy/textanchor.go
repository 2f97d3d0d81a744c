package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/selector"
)

// textAnchor locates an element by its visible text content.
type textAnchor struct {
	cfg selector.StrategyConfig
}

func (s *textAnchor) Config() selector.StrategyConfig { return s.cfg }

func (s *textAnchor) AttemptResolution(ctx context.Context, sel *selector.SemanticSelector, q domquery.Capability) selector.SelectorResult {
	start := time.Now()

	tags := s.cfg.Tags
	if len(tags) == 0 {
		tags = defaultTextQueryTags
	}
	els, err := q.QueryAll(ctx, strings.Join(tags, ", "))
	if err != nil {
		return fail(sel.Name, s.cfg, fmt.Sprintf("text query failed: %v", err), time.Since(start), 0)
	}

	best, _, seen := scanCandidates(ctx, els, func(p *probe) float64 {
		return candidateTextScore(s.cfg.Text, p.text, s.cfg.CaseSensitive)
	})
	if best == nil {
		return fail(sel.Name, s.cfg,
			fmt.Sprintf("no visible element matching text %q", s.cfg.Text),
			time.Since(start), seen)
	}

	mult := 1.0
	exact := best.text == s.cfg.Text
	foldExact := strings.EqualFold(best.text, s.cfg.Text)
	switch {
	case exact:
		mult *= 1.1
	case foldExact:
		// Right words, wrong case.
		mult *= 1.05
		if s.cfg.CaseSensitive {
			mult *= 0.95
		}
	}
	tagOK := textBearingTags[best.tag]
	if tagOK {
		mult *= 1.05
	} else {
		mult *= 0.9
	}

	return finish(ctx, sel, s.cfg, best, mult, tagOK, start, seen)
}

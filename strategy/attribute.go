package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/selector"
)

// attributeMatch locates an element by an attribute and optional value.
type attributeMatch struct {
	cfg selector.StrategyConfig
}

// tagAttrAffinity records which attributes naturally belong on which
// tags. A known tag carrying an unexpected attribute scores lower; an
// unknown tag stays neutral.
var tagAttrAffinity = map[string]map[string]bool{
	"a":      {"href": true, "target": true, "rel": true, "title": true},
	"img":    {"src": true, "alt": true, "width": true, "height": true},
	"input":  {"type": true, "name": true, "value": true, "placeholder": true},
	"form":   {"action": true, "method": true, "name": true},
	"button": {"type": true, "name": true, "value": true},
	"select": {"name": true, "multiple": true},
	"option": {"value": true, "selected": true},
	"label":  {"for": true},
	"iframe": {"src": true, "name": true},
	"table":  {"summary": true},
	"meta":   {"name": true, "content": true, "charset": true},
}

// semanticAttrs carry meaning about what the element is, not how it
// looks.
var semanticAttrs = map[string]bool{
	"id": true, "class": true, "role": true, "name": true, "for": true,
}

func (s *attributeMatch) Config() selector.StrategyConfig { return s.cfg }

func (s *attributeMatch) AttemptResolution(ctx context.Context, sel *selector.SemanticSelector, q domquery.Capability) selector.SelectorResult {
	start := time.Now()

	els, err := q.QueryAll(ctx, fmt.Sprintf("[%s]", s.cfg.Attribute))
	if err != nil {
		return fail(sel.Name, s.cfg, fmt.Sprintf("attribute query failed: %v", err), time.Since(start), 0)
	}

	best, _, seen := scanCandidates(ctx, els, func(p *probe) float64 {
		val, ok := p.attrs[s.cfg.Attribute]
		if !ok {
			return 0
		}
		switch {
		case s.cfg.Value == "":
			// Presence-only match.
			return 0.5
		case s.cfg.ExactValue:
			if val == s.cfg.Value {
				return 1.0
			}
			return 0
		default:
			return candidateTextScore(s.cfg.Value, val, true)
		}
	})
	if best == nil {
		return fail(sel.Name, s.cfg,
			fmt.Sprintf("no visible element with attribute %q matching %q", s.cfg.Attribute, s.cfg.Value),
			time.Since(start), seen)
	}

	mult := 1.0
	val := best.attrs[s.cfg.Attribute]
	switch {
	case s.cfg.Value != "" && val == s.cfg.Value:
		mult *= 1.1
	case s.cfg.Value != "" && strings.Contains(val, s.cfg.Value):
		mult *= 1.05
	}
	attr := s.cfg.Attribute
	if semanticAttrs[attr] {
		mult *= 1.05
	} else if strings.HasPrefix(attr, "data-") {
		mult *= 1.03
	}
	tagOK := true
	if known, ok := tagAttrAffinity[best.tag]; ok {
		if known[attr] {
			mult *= 1.05
		} else if !semanticAttrs[attr] && !strings.HasPrefix(attr, "data-") && !strings.HasPrefix(attr, "aria-") {
			mult *= 0.95
			tagOK = false
		}
	}

	return finish(ctx, sel, s.cfg, best, mult, tagOK, start, seen)
}

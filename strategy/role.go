package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/selector"
)

// roleBased locates an element by its ARIA role, optionally co-matched
// against an accessible name or a supporting attribute.
type roleBased struct {
	cfg selector.StrategyConfig
}

// standardRoles is the subset of ARIA roles that show up in the pages
// this engine targets. Custom roles still resolve, at a discount.
var standardRoles = map[string]bool{
	"alert": true, "article": true, "banner": true, "button": true,
	"cell": true, "checkbox": true, "columnheader": true,
	"complementary": true, "contentinfo": true, "dialog": true,
	"form": true, "grid": true, "gridcell": true, "heading": true,
	"img": true, "link": true, "list": true, "listitem": true,
	"main": true, "menu": true, "menuitem": true, "navigation": true,
	"progressbar": true, "radio": true, "region": true, "row": true,
	"rowheader": true, "search": true, "status": true, "switch": true,
	"tab": true, "table": true, "tabpanel": true, "timer": true,
}

// roleTagAffinity maps a role to the tags that natively express it.
var roleTagAffinity = map[string]map[string]bool{
	"button":       {"button": true, "input": true},
	"link":         {"a": true},
	"navigation":   {"nav": true},
	"main":         {"main": true},
	"banner":       {"header": true},
	"contentinfo":  {"footer": true},
	"list":         {"ul": true, "ol": true},
	"listitem":     {"li": true},
	"table":        {"table": true},
	"row":          {"tr": true},
	"cell":         {"td": true},
	"rowheader":    {"th": true},
	"columnheader": {"th": true},
	"img":          {"img": true},
	"heading":      {"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true},
	"checkbox":     {"input": true},
	"radio":        {"input": true},
	"form":         {"form": true},
	"search":       {"form": true, "input": true},
}

// accessibilityAttrs each add a small confidence bonus when present.
var accessibilityAttrs = []string{
	"aria-label", "aria-labelledby", "aria-describedby", "title", "tabindex",
}

func (s *roleBased) Config() selector.StrategyConfig { return s.cfg }

func (s *roleBased) AttemptResolution(ctx context.Context, sel *selector.SemanticSelector, q domquery.Capability) selector.SelectorResult {
	start := time.Now()

	els, err := q.QueryAll(ctx, fmt.Sprintf("[role=%q]", s.cfg.Role))
	if err != nil {
		return fail(sel.Name, s.cfg, fmt.Sprintf("role query failed: %v", err), time.Since(start), 0)
	}

	best, _, seen := scanCandidates(ctx, els, func(p *probe) float64 {
		if s.cfg.Text != "" {
			return candidateTextScore(s.cfg.Text, accessibleName(p), s.cfg.CaseSensitive)
		}
		return 0.5
	})
	if best == nil {
		return fail(sel.Name, s.cfg,
			fmt.Sprintf("no visible element with role %q", s.cfg.Role),
			time.Since(start), seen)
	}

	mult := 1.0
	if standardRoles[s.cfg.Role] {
		mult *= 1.1
	} else {
		mult *= 0.95
	}
	if s.cfg.Attribute != "" {
		if val, ok := best.attrs[s.cfg.Attribute]; ok && strings.Contains(val, s.cfg.Value) {
			mult *= 1.05
		}
	}
	tagOK := true
	if tags, ok := roleTagAffinity[s.cfg.Role]; ok {
		if tags[best.tag] {
			mult *= 1.05
		} else {
			tagOK = false
		}
	}
	bonus := 0
	for _, a := range accessibilityAttrs {
		if _, ok := best.attrs[a]; ok {
			bonus++
		}
	}
	mult *= 1 + 0.01*float64(bonus)

	return finish(ctx, sel, s.cfg, best, mult, tagOK, start, seen)
}

// accessibleName approximates the ARIA accessible name: aria-label wins
// over visible text.
func accessibleName(p *probe) string {
	if label, ok := p.attrs["aria-label"]; ok && strings.TrimSpace(label) != "" {
		return label
	}
	return p.text
}

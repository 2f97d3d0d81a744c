package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/selector"
)

// domRelationship locates an element by its structural relation to a
// known anchor: child, descendant, sibling, parent, or ancestor.
type domRelationship struct {
	cfg selector.StrategyConfig
}

// relationMultiplier: tighter relations are more trustworthy.
var relationMultiplier = map[selector.Relation]float64{
	selector.RelationChild:      1.1,
	selector.RelationParent:     1.1,
	selector.RelationSibling:    1.05,
	selector.RelationDescendant: 1.02,
	selector.RelationAncestor:   1.02,
}

// containmentPairs lists container tags and the child tags that
// naturally live inside them.
var containmentPairs = map[string]map[string]bool{
	"ul":     {"li": true},
	"ol":     {"li": true},
	"table":  {"tr": true, "caption": true},
	"thead":  {"tr": true},
	"tbody":  {"tr": true},
	"tr":     {"td": true, "th": true},
	"select": {"option": true, "optgroup": true},
	"dl":     {"dt": true, "dd": true},
	"nav":    {"a": true, "ul": true},
	"form":   {"input": true, "select": true, "button": true, "label": true, "textarea": true},
}

func (s *domRelationship) Config() selector.StrategyConfig { return s.cfg }

func (s *domRelationship) AttemptResolution(ctx context.Context, sel *selector.SemanticSelector, q domquery.Capability) selector.SelectorResult {
	start := time.Now()

	els, err := s.relatedElements(ctx, q)
	if err != nil {
		return fail(sel.Name, s.cfg, fmt.Sprintf("relationship query failed: %v", err), time.Since(start), 0)
	}

	best, _, seen := scanCandidates(ctx, els, func(p *probe) float64 {
		if s.cfg.Text != "" {
			return candidateTextScore(s.cfg.Text, p.text, s.cfg.CaseSensitive)
		}
		return 0.5
	})
	if best == nil {
		return fail(sel.Name, s.cfg,
			fmt.Sprintf("no visible %s of %q", s.cfg.Relation, s.cfg.Anchor),
			time.Since(start), seen)
	}

	mult := relationMultiplier[s.cfg.Relation]
	if mult == 0 {
		mult = 1.0
	}
	tagOK := true
	if anchorTag := leadingTag(s.cfg.Anchor); anchorTag != "" {
		container, contained := anchorTag, best.tag
		if s.cfg.Relation == selector.RelationParent || s.cfg.Relation == selector.RelationAncestor {
			container, contained = best.tag, anchorTag
		}
		if pairs, ok := containmentPairs[container]; ok {
			if pairs[contained] {
				mult *= 1.05
			} else {
				tagOK = false
			}
		}
	}

	return finish(ctx, sel, s.cfg, best, mult, tagOK, start, seen)
}

// relatedElements evaluates the relation query. Downward and lateral
// relations map onto CSS combinators; upward relations need XPath axes,
// so the anchor selector is translated to an XPath step first.
func (s *domRelationship) relatedElements(ctx context.Context, q domquery.Capability) ([]domquery.Element, error) {
	target := s.cfg.TargetTag
	if target == "" {
		target = "*"
	}
	switch s.cfg.Relation {
	case selector.RelationChild:
		return q.QueryAll(ctx, s.cfg.Anchor+" > "+target)
	case selector.RelationDescendant:
		return q.QueryAll(ctx, s.cfg.Anchor+" "+target)
	case selector.RelationSibling:
		return q.QueryAll(ctx, s.cfg.Anchor+" ~ "+target)
	case selector.RelationParent, selector.RelationAncestor:
		step, err := cssToXPathStep(s.cfg.Anchor)
		if err != nil {
			return nil, err
		}
		axis := "parent"
		if s.cfg.Relation == selector.RelationAncestor {
			axis = "ancestor"
		}
		return q.QueryXPath(ctx, fmt.Sprintf("//%s/%s::%s", step, axis, target))
	default:
		return nil, fmt.Errorf("strategy: unsupported relation %q", s.cfg.Relation)
	}
}

// cssToXPathStep translates a simple compound selector (tag, #id,
// .class, [attr], [attr=value], concatenated) into one XPath step.
// Combinators and pseudo-classes are out of scope for anchors.
func cssToXPathStep(sel string) (string, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return "", fmt.Errorf("strategy: empty anchor selector")
	}
	if strings.ContainsAny(sel, " >~+:,") {
		return "", fmt.Errorf("strategy: anchor %q too complex for upward relation", sel)
	}

	tag := "*"
	var preds []string
	i := 0
	if isNameByte(sel[0]) {
		j := i
		for j < len(sel) && isNameByte(sel[j]) {
			j++
		}
		tag = sel[i:j]
		i = j
	}
	for i < len(sel) {
		switch sel[i] {
		case '#':
			name, n, err := readName(sel[i+1:])
			if err != nil {
				return "", fmt.Errorf("strategy: anchor %q: %w", sel, err)
			}
			preds = append(preds, fmt.Sprintf("@id=%q", name))
			i += 1 + n
		case '.':
			name, n, err := readName(sel[i+1:])
			if err != nil {
				return "", fmt.Errorf("strategy: anchor %q: %w", sel, err)
			}
			preds = append(preds, fmt.Sprintf(
				`contains(concat(" ",normalize-space(@class)," "),%q)`, " "+name+" "))
			i += 1 + n
		case '[':
			end := strings.IndexByte(sel[i:], ']')
			if end < 0 {
				return "", fmt.Errorf("strategy: anchor %q: unterminated attribute", sel)
			}
			body := sel[i+1 : i+end]
			if k := strings.IndexByte(body, '='); k >= 0 {
				name := body[:k]
				val := strings.Trim(body[k+1:], `"'`)
				preds = append(preds, fmt.Sprintf("@%s=%q", name, val))
			} else {
				preds = append(preds, "@"+body)
			}
			i += end + 1
		default:
			return "", fmt.Errorf("strategy: anchor %q: unexpected %q", sel, sel[i])
		}
	}

	step := tag
	for _, p := range preds {
		step += "[" + p + "]"
	}
	return step, nil
}

func readName(s string) (string, int, error) {
	j := 0
	for j < len(s) && (isNameByte(s[j]) || s[j] == '-' || s[j] == '_') {
		j++
	}
	if j == 0 {
		return "", 0, fmt.Errorf("missing name")
	}
	return s[:j], j, nil
}

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// leadingTag returns the tag name an anchor selector starts with, if any.
func leadingTag(sel string) string {
	sel = strings.TrimSpace(sel)
	j := 0
	for j < len(sel) && isNameByte(sel[j]) {
		j++
	}
	return strings.ToLower(sel[:j])
}

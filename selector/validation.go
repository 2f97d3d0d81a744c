package selector

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// RuleKind classifies a validation rule.
type RuleKind string

const (
	RuleRegex    RuleKind = "regex"
	RuleDataType RuleKind = "data_type"
	RuleSemantic RuleKind = "semantic"
)

// ValidationRule scores the textual content of a candidate element.
// Each rule contributes its Weight to the content-validation component
// of the confidence score.
type ValidationRule struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     RuleKind `yaml:"kind" json:"kind"`
	Pattern  string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`     // regex
	DataType string   `yaml:"data_type,omitempty" json:"data_type,omitempty"` // number | integer | time | score | text
	Semantic string   `yaml:"semantic,omitempty" json:"semantic,omitempty"`   // team_name | score | clock | non_empty
	Weight   float64  `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// regexCache avoids recompiling rule patterns on every candidate probe.
var regexCache sync.Map // pattern -> *regexp.Regexp

func compiled(pattern string) (*regexp.Regexp, bool) {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp), true
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	regexCache.Store(pattern, re)
	return re, true
}

// Evaluate scores text against the rule. Score is always in [0,1].
// Unknown kinds and uncompilable patterns score 0 and fail, never panic.
func (r ValidationRule) Evaluate(text string) (passed bool, score float64) {
	text = strings.TrimSpace(text)
	switch r.Kind {
	case RuleRegex:
		re, ok := compiled(r.Pattern)
		if !ok {
			return false, 0
		}
		if re.MatchString(text) {
			return true, 1
		}
		return false, 0
	case RuleDataType:
		return evalDataType(r.DataType, text)
	case RuleSemantic:
		return evalSemantic(r.Semantic, text)
	default:
		return false, 0
	}
}

var (
	clockRe = regexp.MustCompile(`^\d{1,3}(:\d{2})?'?$|^\d{1,2}:\d{2}(:\d{2})?$`)
	scoreRe = regexp.MustCompile(`^\d{1,3}\s*[-:\x{2013}]\s*\d{1,3}$`)
	nameRe  = regexp.MustCompile(`^[\p{L}][\p{L}\d .'&-]{1,60}$`)
)

func evalDataType(kind, text string) (bool, float64) {
	if text == "" {
		return false, 0
	}
	switch kind {
	case "number":
		if _, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64); err == nil {
			return true, 1
		}
	case "integer":
		if _, err := strconv.Atoi(text); err == nil {
			return true, 1
		}
	case "time":
		if clockRe.MatchString(text) {
			return true, 1
		}
	case "score":
		if scoreRe.MatchString(text) {
			return true, 1
		}
	case "text", "":
		return true, 1
	}
	return false, 0
}

func evalSemantic(kind, text string) (bool, float64) {
	switch kind {
	case "team_name":
		if nameRe.MatchString(text) {
			return true, 1
		}
		// Partial credit for plausible but unusual names (digits-heavy,
		// very long) that still contain letters.
		if strings.IndexFunc(text, unicode.IsLetter) >= 0 && len(text) <= 80 {
			return false, 0.5
		}
		return false, 0
	case "score":
		if scoreRe.MatchString(text) {
			return true, 1
		}
		return false, 0
	case "clock":
		if clockRe.MatchString(text) {
			return true, 1
		}
		return false, 0
	case "non_empty", "":
		if strings.TrimSpace(text) != "" {
			return true, 1
		}
		return false, 0
	}
	return false, 0
}

// ContentScore runs every rule against text and returns the weighted
// average score plus the per-rule outcomes. With no rules, or only
// zero-weight rules, the score is neutral (0.5): absence of evidence is
// not negative evidence. The result is always in [0,1].
func ContentScore(rules []ValidationRule, text string) (float64, []ValidationOutcome) {
	if len(rules) == 0 {
		return 0.5, nil
	}
	outcomes := make([]ValidationOutcome, 0, len(rules))
	var total, weighted float64
	for _, r := range rules {
		w := r.Weight
		if w < 0 {
			w = 0
		}
		passed, score := r.Evaluate(text)
		outcomes = append(outcomes, ValidationOutcome{
			Rule: r.Name, Kind: r.Kind, Passed: passed, Score: score, Weight: w,
		})
		total += w
		weighted += w * score
	}
	if total <= 0 {
		return 0.5, outcomes
	}
	s := weighted / total
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return s, outcomes
}

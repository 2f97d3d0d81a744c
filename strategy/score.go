package strategy

import (
	"strings"
	"time"
)

// scoreInputs carries everything base confidence depends on.
type scoreInputs struct {
	content            float64
	visible            bool
	interactable       bool
	expectsInteraction bool
	tagAppropriate     bool
}

// baseConfidence computes the pre-multiplier confidence. Content quality
// carries 40% of the weight; visibility swings 30% either way; tag
// appropriateness 10%. Interactability adds 20% when present but only
// costs 20% when the selector actually expects an interactive element,
// so read-only spans are not punished for being spans.
func baseConfidence(in scoreInputs) float64 {
	c := 0.4 * in.content
	if in.visible {
		c += 0.3
	} else {
		c -= 0.3
	}
	switch {
	case in.interactable:
		c += 0.2
	case in.expectsInteraction:
		c -= 0.2
	}
	if in.tagAppropriate {
		c += 0.1
	} else {
		c -= 0.1
	}
	return clip01(c)
}

// performancePenalty grows linearly from 0 at 1s to 0.2 at 10s and
// saturates there.
func performancePenalty(elapsed time.Duration) float64 {
	if elapsed <= time.Second {
		return 0
	}
	if elapsed >= 10*time.Second {
		return 0.2
	}
	return 0.2 * float64(elapsed-time.Second) / float64(9*time.Second)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// candidateTextScore rates how well a candidate's text matches the
// target. Exact match is 1.0. A substring match blends length coverage
// with position (earlier is better). Otherwise token overlap (Jaccard)
// gives partial credit.
func candidateTextScore(target, text string, caseSensitive bool) float64 {
	if target == "" {
		return 0
	}
	t, s := target, text
	if !caseSensitive {
		t, s = strings.ToLower(target), strings.ToLower(text)
	}
	if t == s {
		return 1.0
	}
	if idx := strings.Index(s, t); idx >= 0 && len(s) > 0 {
		lenRatio := float64(len(t)) / float64(len(s))
		posRatio := 1 - float64(idx)/float64(len(s))
		return 0.6*lenRatio + 0.4*posRatio
	}
	return jaccard(tokenSet(t), tokenSet(s))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// textBearingTags is the default candidate pool for text anchoring and
// the tag-appropriateness set for text-oriented strategies.
var textBearingTags = map[string]bool{
	"span": true, "div": true, "p": true, "a": true, "td": true,
	"th": true, "li": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "label": true, "strong": true,
	"em": true, "b": true, "i": true, "caption": true,
	"figcaption": true, "dt": true, "dd": true, "button": true,
}

var defaultTextQueryTags = []string{
	"span", "div", "p", "a", "td", "th", "li",
	"h1", "h2", "h3", "h4", "h5", "h6",
	"label", "strong", "em", "b", "caption", "figcaption",
	"dt", "dd", "button",
}

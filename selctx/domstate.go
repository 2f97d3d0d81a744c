package selctx

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Phrase evidence per DOM state. Counting is case-insensitive over the
// sanitised page text; markup never contributes evidence.
var statePhrases = map[DOMState][]string{
	StateLive: {
		"live score", "live now", "in progress", "match started",
		"2nd half", "1st half", "half time",
	},
	StateScheduled: {
		"kick-off", "kick off", "starts at", "scheduled", "upcoming",
		"not started",
	},
	StateFinished: {
		"full time", "full-time", "final score", "match finished",
		"match ended", "ft",
	},
}

// stripper removes all markup, leaving the visible text only.
var stripper = bluemonday.StrictPolicy()

// ClassifyDOMState classifies raw page HTML into a DOM state by
// counting phrase occurrences per class and picking the strict
// majority. Ties and absence of evidence both yield StateUnknown.
func ClassifyDOMState(rawHTML string) DOMState {
	// Tag boundaries become whitespace so adjacent text nodes do not
	// concatenate into false phrase matches.
	spaced := strings.ReplaceAll(rawHTML, "<", " <")
	text := strings.ToLower(stripper.Sanitize(spaced))
	if strings.TrimSpace(text) == "" {
		return StateUnknown
	}

	counts := map[DOMState]int{}
	for state, phrases := range statePhrases {
		for _, phrase := range phrases {
			counts[state] += countOccurrences(text, phrase)
		}
	}

	best, bestCount, tied := StateUnknown, 0, false
	for _, state := range []DOMState{StateLive, StateScheduled, StateFinished} {
		switch {
		case counts[state] > bestCount:
			best, bestCount, tied = state, counts[state], false
		case counts[state] == bestCount && counts[state] > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return StateUnknown
	}
	return best
}

// countOccurrences counts word-boundary-respecting occurrences of
// phrase in text. Short tokens like "ft" must stand alone or the count
// drowns in false positives ("after", "left").
func countOccurrences(text, phrase string) int {
	n := 0
	for i := 0; ; {
		j := strings.Index(text[i:], phrase)
		if j < 0 {
			return n
		}
		at := i + j
		end := at + len(phrase)
		if boundaryBefore(text, at) && boundaryAfter(text, end) {
			n++
		}
		i = end
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

package loader

import (
	"strings"

	"github.com/hazyhaar/domresolve/selctx"
)

// Detection is a guessed context with the evidence-based confidence.
type Detection struct {
	Context    selctx.Context `json:"context"`
	Confidence float64        `json:"confidence"`
}

// pathHints vote for a context path when found in the URL or title.
var pathHints = []struct {
	needle string
	path   string
}{
	{"login", "authentication"},
	{"signin", "authentication"},
	{"sign-in", "authentication"},
	{"settings", "settings"},
	{"preferences", "settings"},
	{"stats", "extraction/match_stats"},
	{"statistics", "extraction/match_stats"},
	{"fixtures", "extraction/match_list"},
	{"results", "extraction/match_list"},
	{"livescore", "extraction/match_list"},
	{"matches", "extraction/match_list"},
	{"match", "extraction/match_details"},
	{"menu", "navigation/main_menu"},
	{"filter", "navigation/filters"},
}

// DetectContext guesses the navigation context from the page URL, title
// and raw HTML. Each of the three signal sources casts at most one vote;
// confidence is the fraction of sources agreeing with the winner. The
// DOM state always comes from content classification.
func DetectContext(url, title, rawHTML string) Detection {
	votes := map[string]int{}
	sources := 0

	if p := hintPath(strings.ToLower(url)); p != "" {
		votes[p]++
		sources++
	}
	if p := hintPath(strings.ToLower(title)); p != "" {
		votes[p]++
		sources++
	}

	state := selctx.StateUnknown
	if rawHTML != "" {
		state = selctx.ClassifyDOMState(rawHTML)
		if state != selctx.StateUnknown {
			// Match-state evidence implies a match page.
			votes["extraction/match_details"]++
			sources++
		}
	}

	best, bestVotes := "", 0
	for p, v := range votes {
		if v > bestVotes || (v == bestVotes && p < best) {
			best, bestVotes = p, v
		}
	}
	if best == "" {
		return Detection{
			Context:    selctx.Context{Primary: "navigation", DOMState: state},
			Confidence: 0,
		}
	}

	p, s, tr := selctx.SplitPath(best)
	return Detection{
		Context: selctx.Context{
			Primary: p, Secondary: s, Tertiary: tr,
			DOMState: state,
		},
		Confidence: float64(bestVotes) / float64(sources),
	}
}

func hintPath(s string) string {
	if s == "" {
		return ""
	}
	for _, h := range pathHints {
		if strings.Contains(s, h.needle) {
			return h.path
		}
	}
	return ""
}

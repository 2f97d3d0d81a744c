// Package selctx owns the hierarchical navigation context: which part
// of the observed application the session currently occupies, how that
// state transitions, and what the page's DOM liveness looks like.
//
// A context is at most three levels deep (primary/secondary/tertiary);
// the slash-joined path of the non-empty levels is the universal cache
// key component. Validation is closed-set: an unknown combination is
// rejected atomically and the previous context is retained.
package selctx

import (
	"fmt"
	"strings"
	"time"
)

// DOMState is the coarse page-liveness classification.
type DOMState string

const (
	StateUnknown   DOMState = "unknown"
	StateLive      DOMState = "live"
	StateScheduled DOMState = "scheduled"
	StateFinished  DOMState = "finished"
)

// Valid reports whether s is a known DOM state.
func (s DOMState) Valid() bool {
	switch s {
	case StateUnknown, StateLive, StateScheduled, StateFinished:
		return true
	}
	return false
}

// Primary context values.
const (
	PrimaryNavigation     = "navigation"
	PrimaryExtraction     = "extraction"
	PrimaryAuthentication = "authentication"
	PrimarySettings       = "settings"
)

// secondaryByPrimary lists the secondary values each primary admits.
var secondaryByPrimary = map[string][]string{
	PrimaryNavigation: {"main_menu", "filters"},
	PrimaryExtraction: {"match_list", "match_stats", "match_details"},
}

// tertiaryBySecondary lists the tertiary values each secondary admits.
// Only match_stats is deep enough to carry a third level (the period
// being extracted).
var tertiaryBySecondary = map[string][]string{
	"match_stats": {"q1", "q2", "q3", "q4", "full_game"},
}

// Context is one navigation state. The zero value is "no context".
type Context struct {
	Primary   string   `json:"primary"`
	Secondary string   `json:"secondary,omitempty"`
	Tertiary  string   `json:"tertiary,omitempty"`
	DOMState  DOMState `json:"dom_state,omitempty"`
	TabID     string   `json:"tab_id,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Path returns the slash-joined non-empty components: the universal
// lookup key. Splitting the path on "/" round-trips to the same
// components for every combination Validate accepts.
func (c Context) Path() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Primary, c.Secondary, c.Tertiary} {
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "/")
}

// SplitPath splits a context path back into its components.
func SplitPath(path string) (primary, secondary, tertiary string) {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) > 0 {
		primary = parts[0]
	}
	if len(parts) > 1 {
		secondary = parts[1]
	}
	if len(parts) > 2 {
		tertiary = parts[2]
	}
	return
}

// Validate checks a context combination against the closed sets.
// Secondary is only meaningful under primaries that admit one, and
// tertiary only under a secondary that admits one; gaps (a tertiary
// without a secondary) are invalid.
func Validate(primary, secondary, tertiary string) error {
	switch primary {
	case PrimaryNavigation, PrimaryExtraction, PrimaryAuthentication, PrimarySettings:
	default:
		return fmt.Errorf("selctx: unknown primary context %q", primary)
	}

	if secondary == "" {
		if tertiary != "" {
			return fmt.Errorf("selctx: tertiary %q without secondary", tertiary)
		}
		return nil
	}
	if !contains(secondaryByPrimary[primary], secondary) {
		return fmt.Errorf("selctx: secondary %q not valid under primary %q", secondary, primary)
	}

	if tertiary == "" {
		return nil
	}
	if !contains(tertiaryBySecondary[secondary], tertiary) {
		return fmt.Errorf("selctx: tertiary %q not valid under secondary %q", tertiary, secondary)
	}
	return nil
}

// ValidCombinations enumerates every (primary, secondary, tertiary)
// triple the validator accepts. Used by tests and preloading.
func ValidCombinations() [][3]string {
	var out [][3]string
	primaries := []string{PrimaryNavigation, PrimaryExtraction, PrimaryAuthentication, PrimarySettings}
	for _, p := range primaries {
		out = append(out, [3]string{p, "", ""})
		for _, s := range secondaryByPrimary[p] {
			out = append(out, [3]string{p, s, ""})
			for _, t := range tertiaryBySecondary[s] {
				out = append(out, [3]string{p, s, t})
			}
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

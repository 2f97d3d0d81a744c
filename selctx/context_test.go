package selctx

import (
	"testing"
)

func TestPath_RoundTripsForAllValidCombinations(t *testing.T) {
	combos := ValidCombinations()
	if len(combos) == 0 {
		t.Fatal("expected at least one valid combination")
	}
	for _, combo := range combos {
		if err := Validate(combo[0], combo[1], combo[2]); err != nil {
			t.Fatalf("ValidCombinations produced invalid combo %v: %v", combo, err)
		}
		c := Context{Primary: combo[0], Secondary: combo[1], Tertiary: combo[2]}
		p, s, tr := SplitPath(c.Path())
		if p != combo[0] || s != combo[1] || tr != combo[2] {
			t.Fatalf("path %q round-tripped to (%q,%q,%q), want %v", c.Path(), p, s, tr, combo)
		}
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		primary, secondary, tertiary string
	}{
		{"betting", "", ""},                       // unknown primary
		{"settings", "match_list", ""},            // secondary not admitted
		{"extraction", "main_menu", ""},           // secondary under wrong primary
		{"extraction", "match_list", "q1"},        // tertiary under wrong secondary
		{"extraction", "", "q1"},                  // tertiary without secondary
		{"navigation", "main_menu", "q1"},         // main_menu admits no tertiary
		{"extraction", "match_stats", "overtime"}, // unknown tertiary
	}
	for _, tt := range tests {
		if err := Validate(tt.primary, tt.secondary, tt.tertiary); err == nil {
			t.Errorf("Validate(%q,%q,%q) accepted, want rejection", tt.primary, tt.secondary, tt.tertiary)
		}
	}
}

func TestValidate_Accepts(t *testing.T) {
	tests := []struct {
		primary, secondary, tertiary string
	}{
		{"extraction", "", ""},
		{"extraction", "match_stats", ""},
		{"extraction", "match_stats", "q1"},
		{"extraction", "match_stats", "full_game"},
		{"navigation", "main_menu", ""},
		{"authentication", "", ""},
	}
	for _, tt := range tests {
		if err := Validate(tt.primary, tt.secondary, tt.tertiary); err != nil {
			t.Errorf("Validate(%q,%q,%q) rejected: %v", tt.primary, tt.secondary, tt.tertiary, err)
		}
	}
}

func TestSplitPath_Partial(t *testing.T) {
	p, s, tr := SplitPath("extraction")
	if p != "extraction" || s != "" || tr != "" {
		t.Fatalf("got (%q,%q,%q)", p, s, tr)
	}
	p, s, tr = SplitPath("extraction/match_stats/q3")
	if p != "extraction" || s != "match_stats" || tr != "q3" {
		t.Fatalf("got (%q,%q,%q)", p, s, tr)
	}
}

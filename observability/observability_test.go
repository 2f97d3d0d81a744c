package observability_test

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domresolve/dbopen"
	"github.com/hazyhaar/domresolve/observability"
)

func newTestStore(t *testing.T) *observability.Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	s := observability.NewStore(db, 16)
	return s
}

func TestStore_ResolutionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.RecordResolution(&observability.ResolutionEntry{
		SelectorName: "home_team_name",
		StrategyType: "text_anchor",
		StrategyID:   "by-text",
		ContextPath:  "extraction/match_list",
		DOMState:     "live",
		TabID:        "t1",
		Success:      true,
		Confidence:   0.92,
		DurationMs:   12,
	})
	s.RecordResolution(&observability.ResolutionEntry{
		SelectorName:  "away_team_name",
		Success:       false,
		FailureReason: "no visible element",
	})
	s.Close() // drains the buffer

	got, err := s.Resolutions(context.Background(), &observability.ResolutionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}

	name := "home_team_name"
	ok, err := s.Resolutions(context.Background(), &observability.ResolutionFilter{
		SelectorName: &name, SuccessOnly: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ok) != 1 {
		t.Fatalf("filtered: got %d, want 1", len(ok))
	}
	e := ok[0]
	if e.Confidence != 0.92 || e.StrategyType != "text_anchor" || e.TabID != "t1" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.EntryID == "" || e.Timestamp.IsZero() {
		t.Fatalf("defaults not filled: %+v", e)
	}

	failed, err := s.Resolutions(context.Background(), &observability.ResolutionFilter{FailedOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].FailureReason != "no visible element" {
		t.Fatalf("failed filter: %+v", failed)
	}
}

func TestStore_InvalidationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.RecordInvalidation(&observability.InvalidationEntry{
		RuleName:    "dom-state-immediate",
		Strategy:    "immediate",
		EventType:   "dom_state_change",
		ContextPath: "extraction/match_list",
		EvictedKeys: []string{"context:extraction/match_list:live:selectors"},
	})
	s.Close()

	got, err := s.Invalidations(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	e := got[0]
	if e.RuleName != "dom-state-immediate" || len(e.EvictedKeys) != 1 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestStore_NavigationTrailPerTab(t *testing.T) {
	s := newTestStore(t)
	s.RecordNavigation(&observability.NavigationEntry{EventType: "navigate", TabID: "t1", URL: "https://x/a"})
	s.RecordNavigation(&observability.NavigationEntry{EventType: "navigate", TabID: "t2", URL: "https://x/b"})
	s.Close()

	all, err := s.NavigationTrail(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all tabs: %d, want 2", len(all))
	}
	t1, err := s.NavigationTrail(context.Background(), "t1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(t1) != 1 || t1[0].URL != "https://x/a" {
		t.Fatalf("tab filter: %+v", t1)
	}
}

func TestStore_StrategySuccessRates(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		s.RecordResolution(&observability.ResolutionEntry{
			SelectorName: "x", StrategyType: "css", Success: i < 2,
		})
	}
	s.Close()

	rates, err := s.StrategySuccessRates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := rates["css"]
	if got < 0.66 || got > 0.67 {
		t.Fatalf("css rate %v, want ~2/3", got)
	}
}

func TestStore_Cleanup(t *testing.T) {
	s := newTestStore(t)
	s.RecordResolution(&observability.ResolutionEntry{
		SelectorName: "old",
		Timestamp:    time.Now().AddDate(0, 0, -30),
	})
	s.RecordResolution(&observability.ResolutionEntry{SelectorName: "fresh"})
	s.Close()

	n, err := s.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("cleaned %d, want 1", n)
	}
	got, err := s.Resolutions(context.Background(), &observability.ResolutionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SelectorName != "fresh" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}

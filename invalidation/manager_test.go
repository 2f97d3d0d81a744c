package invalidation

import (
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/domresolve/cache"
)

func newTestManager(t *testing.T) (*Manager, *cache.Contextual) {
	t.Helper()
	c := cache.NewContextual(cache.New(cache.Options{MaxSize: 100, MaxMemoryBytes: 1 << 20}), time.Minute)
	return NewManager(c, Options{Grace: 50 * time.Millisecond, Tick: 10 * time.Millisecond}), c
}

func TestApply_DOMStateChangeEvictsOldStateImmediately(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_list", "live", "selectors", "x")
	c.Put("extraction/match_list", "finished", "selectors", "y")

	evicted := m.Apply(Event{
		Type:      EventDOMStateChange,
		FromPath:  "extraction/match_list",
		FromState: "live", ToState: "finished",
	})

	if len(evicted) != 1 || !strings.Contains(evicted[0], "extraction/match_list:live") {
		t.Fatalf("evicted %v", evicted)
	}
	if _, ok := c.Get("extraction/match_list", "live", "selectors"); ok {
		t.Fatal("live-state entry survived")
	}
	if _, ok := c.Get("extraction/match_list", "finished", "selectors"); !ok {
		t.Fatal("new-state entry evicted")
	}
}

func TestApply_SameStateDoesNotMatch(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_list", "live", "selectors", "x")
	m.Apply(Event{
		Type:      EventDOMStateChange,
		FromPath:  "extraction/match_list",
		FromState: "live", ToState: "live",
	})
	if _, ok := c.Get("extraction/match_list", "live", "selectors"); !ok {
		t.Fatal("no-op state change evicted")
	}
}

func TestApply_ContextChangeEvictsOldPath(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_list", "", "selectors", "x")
	c.Put("navigation", "", "menu", "y")

	m.Apply(Event{
		Type:     EventContextChange,
		FromPath: "extraction/match_list",
		ToPath:   "navigation/main_menu",
	})

	if _, ok := c.Get("extraction/match_list", "", "selectors"); ok {
		t.Fatal("old-context entry survived")
	}
	if _, ok := c.Get("navigation", "", "menu"); !ok {
		t.Fatal("unrelated entry evicted")
	}
}

func TestApply_NarrowingContextChangeKeepsParentScope(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction", "", "shared", "x")
	m.Apply(Event{
		Type:     EventContextChange,
		FromPath: "extraction",
		ToPath:   "extraction/match_stats",
	})
	if _, ok := c.Get("extraction", "", "shared"); !ok {
		t.Fatal("narrowing into a child context must not evict the parent scope")
	}
}

func TestApply_TabSwitchEvictsOnlyLeavingTab(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_list", "", "tab:t1:selectors", "x")
	c.Put("extraction/match_list", "", "tab:t2:selectors", "y")

	m.Apply(Event{Type: EventTabSwitch, FromTabID: "t1", ToTabID: "t2"})

	if _, ok := c.Get("extraction/match_list", "", "tab:t1:selectors"); ok {
		t.Fatal("leaving tab's entry survived")
	}
	if _, ok := c.Get("extraction/match_list", "", "tab:t2:selectors"); !ok {
		t.Fatal("entering tab's entry evicted")
	}
}

func TestApply_NavigationSchedulesDelayedEviction(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_list", "", "selectors", "x")

	m.Apply(Event{Type: EventNavigation, FromPath: "extraction/match_list", ToPath: "navigation"})

	// Still cached inside the grace period.
	if _, ok := c.Get("extraction/match_list", "", "selectors"); !ok {
		t.Fatal("delayed rule evicted synchronously")
	}
	if m.PendingDelayed() != 1 {
		t.Fatalf("pending = %d, want 1", m.PendingDelayed())
	}
}

func TestApply_ReturningContextCancelsPendingEviction(t *testing.T) {
	m, _ := newTestManager(t)
	m.Apply(Event{Type: EventNavigation, FromPath: "extraction/match_list", ToPath: "navigation"})
	m.Apply(Event{Type: EventContextChange, FromPath: "navigation", ToPath: "extraction/match_list"})
	if m.PendingDelayed() != 0 {
		t.Fatalf("pending = %d, want 0 after return", m.PendingDelayed())
	}
}

func TestDelayedProcessor_EvictsAfterGrace(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_list", "", "selectors", "x")
	m.Apply(Event{Type: EventNavigation, FromPath: "extraction/match_list", ToPath: "navigation"})

	m.delayed.evictDue(time.Now().Add(time.Second))

	if _, ok := c.Get("extraction/match_list", "", "selectors"); ok {
		t.Fatal("delayed eviction never fired")
	}
	if m.PendingDelayed() != 0 {
		t.Fatal("queue not drained")
	}
}

func TestApply_PredictiveEvictsRelatedContexts(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_details", "", "selectors", "x")
	c.Put("extraction/match_stats", "", "selectors", "y")
	c.Put("navigation", "", "menu", "z")

	m.Apply(Event{
		Type:        EventContentChange,
		ToPath:      "extraction/match_list",
		ContentHint: "score cell updated",
	})

	if _, ok := c.Get("extraction/match_details", "", "selectors"); ok {
		t.Fatal("related context match_details survived")
	}
	if _, ok := c.Get("extraction/match_stats", "", "selectors"); ok {
		t.Fatal("related context match_stats survived")
	}
	if _, ok := c.Get("navigation", "", "menu"); !ok {
		t.Fatal("unrelated context evicted")
	}
}

func TestApply_PredictiveMatchPhaseHints(t *testing.T) {
	for _, hint := range []string{"match started", "Match finished after extra time"} {
		m, c := newTestManager(t)
		c.Put("extraction/match_details", "", "selectors", "x")

		m.Apply(Event{
			Type:        EventContentChange,
			ToPath:      "extraction/match_list",
			ContentHint: hint,
		})

		if _, ok := c.Get("extraction/match_details", "", "selectors"); ok {
			t.Fatalf("hint %q did not trigger predictive eviction", hint)
		}
	}
}

func TestRescanStale_OnlyExtractionContexts(t *testing.T) {
	m, c := newTestManager(t)
	m.delayed.staleAge = time.Nanosecond
	c.Put("extraction/match_list", "", "selectors", "x")
	c.Put("navigation/main_menu", "", "menu", "y")
	time.Sleep(5 * time.Millisecond)

	m.delayed.rescanStale()

	if _, ok := c.Get("extraction/match_list", "", "selectors"); ok {
		t.Fatal("stale extraction entry survived the rescan")
	}
	if _, ok := c.Get("navigation/main_menu", "", "menu"); !ok {
		t.Fatal("rescan reached outside extraction contexts")
	}
}

func TestApply_ContentChangeWithoutHintIgnored(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_details", "", "selectors", "x")
	m.Apply(Event{Type: EventContentChange, ToPath: "extraction/match_list", ContentHint: "banner rotated"})
	if _, ok := c.Get("extraction/match_details", "", "selectors"); !ok {
		t.Fatal("non-predictive content change evicted")
	}
}

func TestApply_RecordsAudit(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("extraction/match_list", "live", "selectors", "x")
	m.Apply(Event{
		Type:      EventDOMStateChange,
		FromPath:  "extraction/match_list",
		FromState: "live", ToState: "finished",
	})

	recs := m.Audit().Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Rule != "dom-state-immediate" || rec.Strategy != StrategyImmediate {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ID == "" || rec.At.IsZero() || len(rec.Keys) != 1 {
		t.Fatalf("incomplete record: %+v", rec)
	}
}

func TestAudit_RingBounded(t *testing.T) {
	a := NewAudit(3)
	for i := 0; i < 5; i++ {
		a.Add("r", StrategyImmediate, Event{Type: EventManual}, nil)
	}
	recs := a.Records()
	if len(recs) != 3 {
		t.Fatalf("retained %d, want 3", len(recs))
	}
}

func TestAddRule_CustomRuleApplies(t *testing.T) {
	m, c := newTestManager(t)
	c.Put("settings", "", "theme", "dark")
	m.AddRule(Rule{
		Name:     "manual-settings",
		Strategy: StrategyImmediate,
		Matches:  func(ev Event) bool { return ev.Type == EventManual },
		Targets:  func(ev Event) []string { return []string{"settings"} },
	})
	m.Apply(Event{Type: EventManual})
	if _, ok := c.Get("settings", "", "theme"); ok {
		t.Fatal("custom rule did not evict")
	}
}

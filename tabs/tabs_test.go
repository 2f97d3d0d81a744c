package tabs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/domresolve/cache"
	"github.com/hazyhaar/domresolve/loader"
	"github.com/hazyhaar/domresolve/selctx"
)

func testLoader(t *testing.T) *loader.Loader {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "extraction", "match_list")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	def := `
selectors:
  - name: home_team_name
    strategies:
      - id: by-css
        type: css
        expression: ".team.home"
`
	if err := os.WriteFile(filepath.Join(dir, "teams.yaml"), []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}
	return loader.New(loader.Options{BaseDir: base})
}

func newTestManager(t *testing.T, opts Options) (*Manager, *cache.Contextual) {
	t.Helper()
	c := cache.NewContextual(cache.New(cache.Options{MaxSize: 100, MaxMemoryBytes: 1 << 20}), time.Minute)
	return NewManager(c, testLoader(t), nil, opts), c
}

func matchListContext() selctx.Context {
	return selctx.Context{Primary: "extraction", Secondary: "match_list"}
}

func TestRegister_GeneratesIDAndRejectsDuplicates(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	tab, err := m.Register("", TypeContent, "https://x", "X")
	if err != nil {
		t.Fatal(err)
	}
	if tab.ID == "" {
		t.Fatal("no id generated")
	}
	if _, err := m.Register(tab.ID, TypeContent, "", ""); err == nil {
		t.Fatal("duplicate id accepted")
	}
	if _, err := m.Register("t", "popup", "", ""); err == nil {
		t.Fatal("unknown type accepted")
	}
}

func TestActivate_ServesSelectorSetForTabContext(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.Register("t1", TypeContent, "", "")
	if err := m.SetContext("t1", matchListContext()); err != nil {
		t.Fatal(err)
	}
	set, err := m.Activate(context.Background(), "t1", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set.Selectors["home_team_name"]; !ok {
		t.Fatalf("selector set missing home_team_name: %v", set.Names())
	}
	tab, _ := m.Get("t1")
	if !tab.Active {
		t.Fatal("tab not active")
	}
}

func TestActivate_DefaultPolicyDeactivatesSameTypeHolder(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.Register("t1", TypeContent, "", "")
	m.Register("t2", TypeContent, "", "")
	m.SetContext("t1", matchListContext())
	m.SetContext("t2", matchListContext())

	if _, err := m.Activate(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Activate(context.Background(), "t2", false); err != nil {
		t.Fatal(err)
	}

	t1, _ := m.Get("t1")
	t2, _ := m.Get("t2")
	if t1.Active {
		t.Fatal("previous holder still active")
	}
	if !t2.Active {
		t.Fatal("new tab not active")
	}
}

func TestActivate_PolicyDisabledKeepsBothActive(t *testing.T) {
	m, _ := newTestManager(t, Options{DisableSingleActivePerType: true})
	m.Register("t1", TypeContent, "", "")
	m.Register("t2", TypeContent, "", "")
	m.SetContext("t1", matchListContext())
	m.SetContext("t2", matchListContext())

	m.Activate(context.Background(), "t1", false)
	m.Activate(context.Background(), "t2", false)

	t1, _ := m.Get("t1")
	t2, _ := m.Get("t2")
	if !t1.Active || !t2.Active {
		t.Fatal("policy off must allow concurrent same-type activation")
	}
}

func TestActivate_ModalBlocksOthersUnlessForced(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.Register("modal", TypeModal, "", "")
	m.Register("page", TypeContent, "", "")
	m.SetContext("modal", selctx.Context{Primary: "settings"})
	m.SetContext("page", matchListContext())

	if _, err := m.Activate(context.Background(), "modal", false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Activate(context.Background(), "page", false); err == nil {
		t.Fatal("modal must block activation")
	}
	if _, err := m.Activate(context.Background(), "page", true); err != nil {
		t.Fatalf("force must bypass modal: %v", err)
	}
}

func TestDeactivate_EvictsTabScopedEntries(t *testing.T) {
	m, c := newTestManager(t, Options{})
	m.Register("t1", TypeContent, "", "")
	m.SetContext("t1", matchListContext())
	if _, err := m.Activate(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}
	// Activation cached the tab's selector set.
	if _, ok := c.Get("extraction/match_list", "unknown", "tab:t1:selectors"); !ok {
		t.Fatal("expected tab-scoped cache entry after activation")
	}
	c.Put("extraction/match_list", "", "shared", "keep")

	if err := m.Deactivate("t1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("extraction/match_list", "unknown", "tab:t1:selectors"); ok {
		t.Fatal("tab-scoped entry survived deactivation")
	}
	if _, ok := c.Get("extraction/match_list", "", "shared"); !ok {
		t.Fatal("shared entry evicted")
	}
}

func TestActivate_SecondActivationHitsTabCache(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.Register("t1", TypeContent, "", "")
	m.SetContext("t1", matchListContext())
	a, err := m.Activate(context.Background(), "t1", false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Activate(context.Background(), "t1", false)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("second activation bypassed the tab cache")
	}
}

func TestActivate_WithoutContextFails(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.Register("t1", TypeContent, "", "")
	if _, err := m.Activate(context.Background(), "t1", false); err == nil {
		t.Fatal("activation without context accepted")
	}
}

func TestRegister_FullRegistryEvictsOldestInactive(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxTabs: 2})
	m.Register("t1", TypeContent, "", "")
	m.Register("t2", TypeContent, "", "")

	if _, err := m.Register("t3", TypeContent, "", ""); err != nil {
		t.Fatalf("expected idle eviction to make room: %v", err)
	}
	if _, ok := m.Get("t1"); ok {
		t.Fatal("oldest idle tab still registered")
	}
}

func TestRegister_AllActiveRegistryRejects(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxTabs: 1})
	m.Register("t1", TypeContent, "", "")
	m.SetContext("t1", matchListContext())
	if _, err := m.Activate(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("t2", TypeContent, "", ""); err == nil {
		t.Fatal("full registry of active tabs must reject")
	}
}

func TestSweepInactive(t *testing.T) {
	m, _ := newTestManager(t, Options{InactivityTimeout: time.Minute})
	m.Register("idle", TypeContent, "", "")
	m.Register("busy", TypeContent, "", "")
	m.SetContext("busy", matchListContext())
	if _, err := m.Activate(context.Background(), "busy", false); err != nil {
		t.Fatal(err)
	}

	closed := m.SweepInactive(time.Now().Add(2 * time.Minute))
	if len(closed) != 1 || closed[0] != "idle" {
		t.Fatalf("swept %v, want [idle]", closed)
	}
	if _, ok := m.Get("busy"); !ok {
		t.Fatal("active tab swept")
	}
}

func TestActivate_RulesGateUnlessForced(t *testing.T) {
	rule, err := NewActivationRule("work-tabs", "^work_", "extraction")
	if err != nil {
		t.Fatal(err)
	}
	m, _ := newTestManager(t, Options{ActivationRules: []ActivationRule{rule}})
	m.Register("work_1", TypeContent, "", "")
	m.Register("work_2", TypeContent, "", "")
	m.Register("scratch", TypeContent, "", "")
	m.SetContext("work_1", matchListContext())
	m.SetContext("work_2", selctx.Context{Primary: "settings"})
	m.SetContext("scratch", matchListContext())

	if _, err := m.Activate(context.Background(), "work_1", false); err != nil {
		t.Fatalf("rule-matching tab rejected: %v", err)
	}
	if _, err := m.Activate(context.Background(), "scratch", false); err == nil {
		t.Fatal("id outside the rule pattern activated")
	}
	if _, err := m.Activate(context.Background(), "work_2", false); err == nil {
		t.Fatal("tab outside the required context activated")
	}
	if _, err := m.Activate(context.Background(), "scratch", true); err != nil {
		t.Fatalf("force must bypass activation rules: %v", err)
	}
}

func TestNewActivationRule_RejectsBadPattern(t *testing.T) {
	if _, err := NewActivationRule("broken", "(", ""); err == nil {
		t.Fatal("invalid pattern accepted")
	}
}

func TestSetContext_ActiveTabRequiresDeactivation(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.Register("t1", TypeContent, "", "")
	if err := m.SetContext("t1", matchListContext()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Activate(context.Background(), "t1", false); err != nil {
		t.Fatal(err)
	}

	if err := m.SetContext("t1", selctx.Context{Primary: "settings"}); err == nil {
		t.Fatal("context switch on an active tab accepted")
	}
	if err := m.Deactivate("t1"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetContext("t1", selctx.Context{Primary: "settings"}); err != nil {
		t.Fatalf("context switch after deactivation rejected: %v", err)
	}
}

func TestSetContext_RejectsInvalid(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	m.Register("t1", TypeContent, "", "")
	if err := m.SetContext("t1", selctx.Context{Primary: "betting"}); err == nil {
		t.Fatal("invalid context accepted")
	}
	if err := m.SetContext("ghost", matchListContext()); err == nil {
		t.Fatal("unknown tab accepted")
	}
}

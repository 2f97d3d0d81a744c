// Package tabs scopes selector state to browser tabs. Each registered
// tab carries its own navigation context and its own slice of the
// shared cache; activating a tab deactivates conflicting tabs first,
// fires the tab-switch invalidation, and serves the tab's selector set.
package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/domresolve/cache"
	"github.com/hazyhaar/domresolve/idgen"
	"github.com/hazyhaar/domresolve/invalidation"
	"github.com/hazyhaar/domresolve/loader"
	"github.com/hazyhaar/domresolve/selctx"
)

// Type classifies what a tab is for. Isolation policies key off it.
type Type string

const (
	TypeContent    Type = "content"
	TypeNavigation Type = "navigation"
	TypeSettings   Type = "settings"
	TypeModal      Type = "modal"
	TypeFilter     Type = "filter"
)

// Valid reports whether t is a known tab type.
func (t Type) Valid() bool {
	switch t {
	case TypeContent, TypeNavigation, TypeSettings, TypeModal, TypeFilter:
		return true
	}
	return false
}

// Tab is one tab's scoped state.
type Tab struct {
	ID      string         `json:"id"`
	Type    Type           `json:"type"`
	URL     string         `json:"url,omitempty"`
	Title   string         `json:"title,omitempty"`
	Context selctx.Context `json:"context"`
	Active  bool           `json:"active"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// newTabID generates ids for tabs registered without one.
var newTabID = idgen.Prefixed("tab_", idgen.NanoID(10))

// cacheSubkey namespaces a tab's entries inside the shared cache.
func cacheSubkey(tabID, kind string) string {
	return "tab:" + tabID + ":" + kind
}

// ActivationRule gates Activate: the tab id must match the pattern and
// the tab's context path must sit under the required context, when one
// is set. With no rules configured, every tab may activate.
type ActivationRule struct {
	Name            string
	idPattern       *regexp.Regexp
	requiredContext string
}

// NewActivationRule compiles a rule. An empty idPattern matches every
// tab id; an empty requiredContext accepts any context.
func NewActivationRule(name, idPattern, requiredContext string) (ActivationRule, error) {
	r := ActivationRule{Name: name, requiredContext: requiredContext}
	if idPattern != "" {
		re, err := regexp.Compile(idPattern)
		if err != nil {
			return ActivationRule{}, fmt.Errorf("tabs: rule %s: %w", name, err)
		}
		r.idPattern = re
	}
	return r, nil
}

func (r ActivationRule) matches(t *Tab) bool {
	if r.idPattern != nil && !r.idPattern.MatchString(t.ID) {
		return false
	}
	if r.requiredContext != "" {
		p := t.Context.Path()
		if p != r.requiredContext && !strings.HasPrefix(p, r.requiredContext+"/") {
			return false
		}
	}
	return true
}

// Options configures a Manager.
type Options struct {
	// DisableSingleActivePerType allows several same-type tabs to be
	// active at once. By default at most one tab per type is active;
	// activating another deactivates the current holder first.
	DisableSingleActivePerType bool
	// ActivationRules gate Activate. Empty means no gating.
	ActivationRules []ActivationRule
	// InactivityTimeout ages out tabs not activated recently; default 10m.
	InactivityTimeout time.Duration
	// MaxTabs bounds retained tabs; the oldest inactive ones close
	// first. Default 32.
	MaxTabs int
	Logger  *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = 10 * time.Minute
	}
	if o.MaxTabs <= 0 {
		o.MaxTabs = 32
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Manager owns the tab registry and enforces isolation.
type Manager struct {
	opts   Options
	cache  *cache.Contextual
	loader *loader.Loader
	inval  *invalidation.Manager

	mu    sync.Mutex
	tabs  map[string]*Tab
	rules []ActivationRule
}

// NewManager builds a tab manager. loader and inval may be nil in
// reduced setups; activation then skips selector loading or
// invalidation events respectively.
func NewManager(c *cache.Contextual, l *loader.Loader, inval *invalidation.Manager, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		opts:   opts,
		cache:  c,
		loader: l,
		inval:  inval,
		tabs:   make(map[string]*Tab),
		rules:  opts.ActivationRules,
	}
}

// AddActivationRule appends an activation rule at runtime.
func (m *Manager) AddActivationRule(r ActivationRule) {
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// Register adds a tab. Empty id gets a generated one. When the registry
// is full the oldest inactive tab is closed to make room; with only
// active tabs registration fails.
func (m *Manager) Register(id string, typ Type, url, title string) (*Tab, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("tabs: unknown tab type %q", typ)
	}
	if id == "" {
		id = newTabID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[id]; ok {
		return nil, fmt.Errorf("tabs: tab %s already registered", id)
	}
	if len(m.tabs) >= m.opts.MaxTabs {
		if !m.closeOldestInactiveLocked() {
			return nil, fmt.Errorf("tabs: registry full (%d active tabs)", len(m.tabs))
		}
	}
	now := time.Now()
	t := &Tab{ID: id, Type: typ, URL: url, Title: title, CreatedAt: now, LastActiveAt: now}
	m.tabs[id] = t
	m.opts.Logger.Debug("tabs: registered", "tab", id, "type", typ)
	out := *t
	return &out, nil
}

// SetContext binds a navigation context to a tab. The context is
// validated; rejection leaves the tab untouched. An active tab must be
// deactivated before its context can switch.
func (m *Manager) SetContext(id string, c selctx.Context) error {
	if err := selctx.Validate(c.Primary, c.Secondary, c.Tertiary); err != nil {
		return err
	}
	if c.DOMState == "" {
		c.DOMState = selctx.StateUnknown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return fmt.Errorf("tabs: unknown tab %s", id)
	}
	if t.Active {
		return fmt.Errorf("tabs: tab %s is active, deactivate it before switching context", id)
	}
	c.TabID = id
	c.UpdatedAt = time.Now()
	t.Context = c
	return nil
}

// Activate makes a tab the active one of its type and returns its
// selector set. When activation rules are configured, one must match
// the tab. A modal tab blocks activation of non-modal tabs until it is
// deactivated. Force bypasses both the rules and the modal block. The
// previously active same-type tab is deactivated first under the
// single-active policy, and the tab switch is reported to the
// invalidation manager.
func (m *Manager) Activate(ctx context.Context, id string, force bool) (*loader.Set, error) {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("tabs: unknown tab %s", id)
	}
	if !force && len(m.rules) > 0 {
		matched := false
		for _, r := range m.rules {
			if r.matches(t) {
				matched = true
				break
			}
		}
		if !matched {
			m.mu.Unlock()
			return nil, fmt.Errorf("tabs: no activation rule matches tab %s", id)
		}
	}
	if t.Type != TypeModal && !force {
		for _, other := range m.tabs {
			if other.Active && other.Type == TypeModal {
				m.mu.Unlock()
				return nil, fmt.Errorf("tabs: modal tab %s blocks activation of %s", other.ID, id)
			}
		}
	}

	var fromID string
	if !m.opts.DisableSingleActivePerType {
		for _, other := range m.tabs {
			if other.ID != id && other.Active && other.Type == t.Type {
				// Explicit deactivation before the switch.
				m.deactivateLocked(other)
				fromID = other.ID
			}
		}
	}
	t.Active = true
	t.LastActiveAt = time.Now()
	tabCtx := t.Context
	m.mu.Unlock()

	if m.inval != nil && fromID != "" {
		m.inval.Apply(invalidation.Event{
			Type:      invalidation.EventTabSwitch,
			FromTabID: fromID,
			ToTabID:   id,
		})
	}
	m.opts.Logger.Debug("tabs: activated", "tab", id, "deactivated", fromID)

	return m.selectorsFor(ctx, id, tabCtx)
}

// selectorsFor serves the tab's selector set, preferring the tab-scoped
// cache entry over a loader round trip.
func (m *Manager) selectorsFor(ctx context.Context, id string, c selctx.Context) (*loader.Set, error) {
	if m.loader == nil {
		return &loader.Set{Path: c.Path(), Selectors: nil}, nil
	}
	path := c.Path()
	if path == "" {
		return nil, fmt.Errorf("tabs: tab %s has no context", id)
	}
	state := string(c.DOMState)
	sub := cacheSubkey(id, "selectors")
	if m.cache != nil {
		if v, ok := m.cache.Get(path, state, sub); ok {
			set := v.(*loader.Set)
			return set, nil
		}
	}
	set, err := m.loader.LoadForContext(ctx, path, state)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		if err := m.cache.Put(path, state, sub, set); err != nil {
			m.opts.Logger.Warn("tabs: cache put failed", "tab", id, "error", err)
		}
	}
	return set, nil
}

// Deactivate marks a tab inactive and evicts its cache slice.
func (m *Manager) Deactivate(id string) error {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("tabs: unknown tab %s", id)
	}
	m.deactivateLocked(t)
	m.mu.Unlock()
	return nil
}

// deactivateLocked flips the flag and evicts tab-scoped entries.
func (m *Manager) deactivateLocked(t *Tab) {
	if !t.Active {
		return
	}
	t.Active = false
	if m.cache != nil {
		evicted := m.cache.EvictContaining("tab:" + t.ID)
		m.opts.Logger.Debug("tabs: deactivated", "tab", t.ID, "evicted", len(evicted))
	}
}

// Close deactivates and removes a tab.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return fmt.Errorf("tabs: unknown tab %s", id)
	}
	m.deactivateLocked(t)
	delete(m.tabs, id)
	m.opts.Logger.Debug("tabs: closed", "tab", id)
	return nil
}

// closeOldestInactiveLocked removes the longest-idle inactive tab.
func (m *Manager) closeOldestInactiveLocked() bool {
	var victim *Tab
	for _, t := range m.tabs {
		if t.Active {
			continue
		}
		if victim == nil || t.LastActiveAt.Before(victim.LastActiveAt) {
			victim = t
		}
	}
	if victim == nil {
		return false
	}
	m.deactivateLocked(victim)
	delete(m.tabs, victim.ID)
	m.opts.Logger.Debug("tabs: evicted idle tab", "tab", victim.ID)
	return true
}

// SweepInactive closes tabs idle past the inactivity timeout. Active
// tabs never sweep. Returns the closed tab ids.
func (m *Manager) SweepInactive(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed []string
	for id, t := range m.tabs {
		if t.Active {
			continue
		}
		if now.Sub(t.LastActiveAt) >= m.opts.InactivityTimeout {
			m.deactivateLocked(t)
			delete(m.tabs, id)
			closed = append(closed, id)
		}
	}
	if len(closed) > 0 {
		m.opts.Logger.Debug("tabs: swept inactive", "count", len(closed))
	}
	return closed
}

// StartSweeper sweeps on the given interval until ctx ends.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.SweepInactive(now)
			}
		}
	}()
}

// Tabs returns a snapshot of all tabs sorted by creation time.
func (m *Manager) Tabs() []Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a snapshot of one tab.
func (m *Manager) Get(id string) (Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return Tab{}, false
	}
	return *t, true
}

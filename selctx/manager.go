package selctx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domresolve/cache"
)

// Manager owns the single current context of a session. Transitions are
// validated atomically: an invalid combination is logged and discarded,
// never partially applied. Accepting a transition proactively drops the
// cache entries scoped to the previous path when the change is
// significant (primary or secondary changed, or the DOM state moved
// between two known values). A tertiary-only change keeps the cache.
type Manager struct {
	mu      sync.Mutex
	current Context

	cache   *cache.Contextual
	history *History
	logger  *slog.Logger
}

// NewManager creates a context manager. cache may be nil (no proactive
// eviction); history may be nil (no transition recording).
func NewManager(c *cache.Contextual, history *History, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cache: c, history: history, logger: logger}
}

// Current returns a snapshot of the current context.
func (m *Manager) Current() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetContext validates and applies a context change. Returns whether
// the change was accepted; rejections keep the prior context intact.
func (m *Manager) SetContext(primary, secondary, tertiary string, state DOMState, tabID string) bool {
	if err := Validate(primary, secondary, tertiary); err != nil {
		m.logger.Warn("selctx: rejected context change", "error", err,
			"primary", primary, "secondary", secondary, "tertiary", tertiary)
		return false
	}
	if state == "" {
		state = StateUnknown
	}
	if !state.Valid() {
		m.logger.Warn("selctx: rejected context change, unknown dom state", "dom_state", state)
		return false
	}

	m.mu.Lock()
	prev := m.current
	now := time.Now()
	next := Context{
		Primary: primary, Secondary: secondary, Tertiary: tertiary,
		DOMState: state, TabID: tabID,
		Active: true, CreatedAt: prev.CreatedAt, UpdatedAt: now,
	}
	if next.CreatedAt.IsZero() || next.Path() != prev.Path() {
		next.CreatedAt = now
	}
	m.current = next
	m.mu.Unlock()

	evict := shouldEvict(prev, next)
	if evict && m.cache != nil && prev.Path() != "" {
		removed := m.cache.EvictContaining(prev.Path())
		if len(removed) > 0 {
			m.logger.Info("selctx: evicted previous context entries",
				"path", prev.Path(), "count", len(removed))
		}
	}
	if m.history != nil {
		m.history.RecordTransition(ContextTransition{
			FromPath: prev.Path(), ToPath: next.Path(),
			FromState: prev.DOMState, ToState: next.DOMState,
			Evicted: evict, At: now,
		})
	}
	m.logger.Debug("selctx: context set", "path", next.Path(), "dom_state", next.DOMState)
	return true
}

// SetDOMState updates only the DOM state of the current context,
// re-running the full transition logic.
func (m *Manager) SetDOMState(state DOMState) bool {
	cur := m.Current()
	if cur.Primary == "" {
		m.logger.Warn("selctx: cannot set dom state without a context")
		return false
	}
	return m.SetContext(cur.Primary, cur.Secondary, cur.Tertiary, state, cur.TabID)
}

// shouldEvict decides whether a transition invalidates the previous
// path's cache entries: primary or secondary changed, or the DOM state
// moved between two known (non-unknown) values.
func shouldEvict(prev, next Context) bool {
	if prev.Primary == "" {
		return false
	}
	if prev.Primary != next.Primary || prev.Secondary != next.Secondary {
		return true
	}
	if prev.DOMState != next.DOMState &&
		prev.DOMState != StateUnknown && prev.DOMState != "" &&
		next.DOMState != StateUnknown {
		return true
	}
	return false
}

// History returns the transition/event history, or nil.
func (m *Manager) History() *History { return m.history }

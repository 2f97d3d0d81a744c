package domresolve

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domresolve/cache"
	"github.com/hazyhaar/domresolve/dbopen"
	"github.com/hazyhaar/domresolve/domquery"
	"github.com/hazyhaar/domresolve/domquery/htmldoc"
	"github.com/hazyhaar/domresolve/invalidation"
	"github.com/hazyhaar/domresolve/loader"
	"github.com/hazyhaar/domresolve/observability"
	"github.com/hazyhaar/domresolve/selctx"
	"github.com/hazyhaar/domresolve/selector"
	"github.com/hazyhaar/domresolve/strategy"
	"github.com/hazyhaar/domresolve/tabs"
)

// Session wires the resolution stack together: one shared contextual
// cache, one context manager, the invalidation rule engine, the layered
// selector loader, the tab registry and the strategy engine, plus the
// optional SQLite observability store.
type Session struct {
	cfg    Config
	logger *slog.Logger

	db     *sql.DB
	ownsDB bool
	store  *observability.Store

	cache    *cache.Contextual
	history  *selctx.History
	contexts *selctx.Manager
	inval    *invalidation.Manager
	loader   *loader.Loader
	tabs     *tabs.Manager
	engine   *strategy.Engine
}

// SessionOption configures a Session before the components are built.
type SessionOption func(*Session)

// WithSessionLogger sets the logger shared by all components.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithObservabilityDB injects an already-open observability database.
// The session will not close it.
func WithObservabilityDB(db *sql.DB) SessionOption {
	return func(s *Session) { s.db = db }
}

// NewSession builds a session from the config. With an empty
// Observability.DBPath and no injected database, persistence is off.
func NewSession(cfg *Config, opts ...SessionOption) (*Session, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	s := &Session{cfg: *cfg}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	lru := cache.New(cache.Options{
		MaxSize:        cfg.Cache.MaxEntries,
		MaxMemoryBytes: cfg.Cache.MaxMemoryBytes,
		SweepInterval:  cfg.Cache.SweepInterval,
		Logger:         s.logger,
	})
	s.cache = cache.NewContextual(lru, cfg.Cache.BaseTTL)
	s.history = selctx.NewHistory(0)
	s.contexts = selctx.NewManager(s.cache, s.history, s.logger)
	s.inval = invalidation.NewManager(s.cache, invalidation.Options{
		Grace:         cfg.Invalidation.Grace,
		Tick:          cfg.Invalidation.Tick,
		StaleAge:      cfg.Invalidation.StaleAge,
		AuditCapacity: cfg.Invalidation.AuditCapacity,
		Logger:        s.logger,
	})
	s.loader = loader.New(loader.Options{
		BaseDir:     cfg.Loader.BaseDir,
		CacheSize:   cfg.Loader.CacheSize,
		CacheTTL:    cfg.Loader.CacheTTL,
		Concurrency: cfg.Loader.Concurrency,
		Logger:      s.logger,
	})
	s.tabs = tabs.NewManager(s.cache, s.loader, s.inval, tabs.Options{
		DisableSingleActivePerType: cfg.Tabs.DisableSingleActivePerType,
		InactivityTimeout:          cfg.Tabs.InactivityTimeout,
		MaxTabs:                    cfg.Tabs.MaxTabs,
		Logger:                     s.logger,
	})
	s.engine = strategy.NewEngine(strategy.WithLogger(s.logger))

	if s.db == nil && cfg.Observability.DBPath != "" {
		db, err := dbopen.Open(cfg.Observability.DBPath,
			dbopen.WithMkdirAll(),
			dbopen.WithSchema(observability.Schema))
		if err != nil {
			return nil, fmt.Errorf("domresolve: open observability db: %w", err)
		}
		s.db = db
		s.ownsDB = true
	}
	if s.db != nil {
		s.store = observability.NewStore(s.db, cfg.Observability.BufferSize)
	}
	return s, nil
}

// Start launches the background loops: cache sweeper, delayed
// invalidation processor, tab sweeper, selector preload and the
// observability snapshot loop. All stop when ctx ends.
func (s *Session) Start(ctx context.Context) {
	go s.cache.LRU().StartSweeper(ctx)
	s.inval.Start(ctx)
	s.tabs.StartSweeper(ctx, s.cfg.Tabs.SweepInterval)
	if len(s.cfg.Loader.PreloadPaths) > 0 {
		go s.loader.Preload(ctx, s.cfg.Loader.PreloadPaths, "")
	}
	if s.store != nil {
		go s.snapshotLoop(ctx)
	}
}

// Close drains the observability store and releases the database when
// the session opened it.
func (s *Session) Close() error {
	var firstErr error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			firstErr = err
		}
	}
	if s.ownsDB && s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Resolve resolves a named selector against the query capability under
// the session's current context. Successful results are cached per
// context and DOM state; a cache hit is marked FromCache. Every attempt
// is recorded to the observability store when one is configured.
func (s *Session) Resolve(ctx context.Context, name string, q domquery.Capability) (selector.SelectorResult, error) {
	cur := s.contexts.Current()
	path := cur.Path()
	if path == "" {
		return selector.SelectorResult{}, fmt.Errorf("domresolve: no active context")
	}
	state := string(cur.DOMState)
	sub := "result:" + name

	if v, ok := s.cache.Get(path, state, sub); ok {
		res := v.(selector.SelectorResult)
		res.FromCache = true
		s.recordResolution(res, cur)
		return res, nil
	}

	set, err := s.loader.LoadForContext(ctx, path, state)
	if err != nil {
		return selector.SelectorResult{}, err
	}
	sel, ok := set.Selectors[name]
	if !ok {
		return selector.SelectorResult{}, fmt.Errorf("domresolve: selector %q not defined under %s", name, path)
	}

	res := s.engine.Resolve(ctx, sel, q)
	if res.Success {
		if err := s.cache.Put(path, state, sub, res); err != nil {
			s.logger.Warn("domresolve: result cache put failed", "selector", name, "error", err)
		}
	}
	s.recordResolution(res, cur)
	return res, nil
}

// ResolveHTML parses a raw HTML document and resolves against it.
func (s *Session) ResolveHTML(ctx context.Context, name, rawHTML string) (selector.SelectorResult, error) {
	doc, err := htmldoc.Parse(rawHTML)
	if err != nil {
		return selector.SelectorResult{}, err
	}
	return s.Resolve(ctx, name, doc)
}

// SetContext switches the session's context, firing the matching
// invalidation event. A rejected combination leaves everything intact.
func (s *Session) SetContext(primary, secondary, tertiary string, state selctx.DOMState, tabID string) error {
	prev := s.contexts.Current()
	if !s.contexts.SetContext(primary, secondary, tertiary, state, tabID) {
		return fmt.Errorf("domresolve: invalid context %s/%s/%s", primary, secondary, tertiary)
	}
	s.fireTransition(prev, s.contexts.Current(), "")
	return nil
}

// SetDOMState updates only the DOM state of the current context.
func (s *Session) SetDOMState(state selctx.DOMState) error {
	cur := s.contexts.Current()
	if cur.Primary == "" {
		return fmt.Errorf("domresolve: no active context")
	}
	return s.SetContext(cur.Primary, cur.Secondary, cur.Tertiary, state, cur.TabID)
}

// Navigate detects the context for a page and switches to it. The DOM
// state comes from content classification; the detection is returned so
// callers can inspect the confidence.
func (s *Session) Navigate(url, title, rawHTML string) (loader.Detection, error) {
	det := loader.DetectContext(url, title, rawHTML)
	prev := s.contexts.Current()
	c := det.Context
	if !s.contexts.SetContext(c.Primary, c.Secondary, c.Tertiary, c.DOMState, prev.TabID) {
		return det, fmt.Errorf("domresolve: detected context rejected: %s", c.Path())
	}
	cur := s.contexts.Current()
	s.history.RecordEvent(selctx.NavigationEvent{
		Type: "navigate", URL: url, Path: cur.Path(),
		DOMState: cur.DOMState, TabID: cur.TabID,
	})
	s.fireTransition(prev, cur, url)
	return det, nil
}

// fireTransition translates an accepted context change into the
// matching invalidation event and persists the navigation record.
func (s *Session) fireTransition(prev, cur selctx.Context, url string) {
	ev := invalidation.Event{
		FromPath:  prev.Path(),
		ToPath:    cur.Path(),
		FromState: string(prev.DOMState),
		ToState:   string(cur.DOMState),
		FromTabID: prev.TabID,
		ToTabID:   cur.TabID,
	}
	switch {
	case url != "":
		ev.Type = invalidation.EventNavigation
	case prev.Path() == cur.Path() && prev.DOMState != cur.DOMState:
		ev.Type = invalidation.EventDOMStateChange
	default:
		ev.Type = invalidation.EventContextChange
	}

	evicted := s.inval.Apply(ev)
	if s.store != nil {
		if len(evicted) > 0 {
			s.store.RecordInvalidation(&observability.InvalidationEntry{
				RuleName:    "transition",
				Strategy:    string(invalidation.StrategyImmediate),
				EventType:   string(ev.Type),
				ContextPath: prev.Path(),
				EvictedKeys: evicted,
			})
		}
		s.store.RecordNavigation(&observability.NavigationEntry{
			EventType:   string(ev.Type),
			URL:         url,
			ContextPath: cur.Path(),
			DOMState:    string(cur.DOMState),
			TabID:       cur.TabID,
		})
	}
}

// ReportContentChange feeds a content-change hint to the predictive
// invalidation rules. Returns the keys evicted synchronously.
func (s *Session) ReportContentChange(hint string) []string {
	cur := s.contexts.Current()
	evicted := s.inval.Apply(invalidation.Event{
		Type:        invalidation.EventContentChange,
		ToPath:      cur.Path(),
		FromState:   string(cur.DOMState),
		ToState:     string(cur.DOMState),
		ContentHint: hint,
	})
	if s.store != nil && len(evicted) > 0 {
		s.store.RecordInvalidation(&observability.InvalidationEntry{
			RuleName:    "content-predictive",
			Strategy:    string(invalidation.StrategyPredictive),
			EventType:   string(invalidation.EventContentChange),
			ContextPath: cur.Path(),
			EvictedKeys: evicted,
		})
	}
	return evicted
}

// Invalidate manually evicts every cache entry containing the fragment.
func (s *Session) Invalidate(fragment string) []string {
	evicted := s.cache.EvictContaining(fragment)
	s.loader.Invalidate(fragment)
	if s.store != nil {
		s.store.RecordInvalidation(&observability.InvalidationEntry{
			RuleName:    "manual",
			Strategy:    string(invalidation.StrategyImmediate),
			EventType:   string(invalidation.EventManual),
			ContextPath: fragment,
			EvictedKeys: evicted,
		})
	}
	s.logger.Info("domresolve: manual invalidation", "fragment", fragment, "evicted", len(evicted))
	return evicted
}

func (s *Session) recordResolution(res selector.SelectorResult, cur selctx.Context) {
	if s.store == nil {
		return
	}
	s.store.RecordResolution(&observability.ResolutionEntry{
		SelectorName:  res.SelectorName,
		StrategyType:  string(res.StrategyUsed),
		StrategyID:    res.StrategyID,
		ContextPath:   cur.Path(),
		DOMState:      string(cur.DOMState),
		TabID:         cur.TabID,
		Success:       res.Success,
		Confidence:    res.Confidence,
		DurationMs:    res.ResolutionTime.Milliseconds(),
		FromCache:     res.FromCache,
		FailureReason: res.FailureReason,
	})
}

// snapshotLoop periodically persists strategy counters and applies the
// retention policy.
func (s *Session) snapshotLoop(ctx context.Context) {
	snap := time.NewTicker(s.cfg.Observability.SnapshotInterval)
	defer snap.Stop()
	cleanup := time.NewTicker(24 * time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snap.C:
			for _, ts := range s.engine.Metrics().Snapshot() {
				s.store.RecordStrategySnapshot(&observability.StrategySnapshot{
					StrategyType: string(ts.Type),
					Attempts:     ts.Attempts,
					Successes:    ts.Successes,
					AvgLatencyMs: float64(ts.AvgLatency.Microseconds()) / 1000,
				})
			}
		case <-cleanup.C:
			if n, err := s.store.Cleanup(ctx, s.cfg.Observability.RetentionDays); err != nil {
				s.logger.Warn("domresolve: retention cleanup failed", "error", err)
			} else if n > 0 {
				s.logger.Info("domresolve: retention cleanup", "removed", n)
			}
		}
	}
}

// SessionStats aggregates the counters of every component.
type SessionStats struct {
	Cache          cache.Stats             `json:"cache"`
	LoaderCache    cache.Stats             `json:"loader_cache"`
	Strategies     []strategy.TypeSnapshot `json:"strategies"`
	Context        selctx.Context          `json:"context"`
	Tabs           int                     `json:"tabs"`
	PendingDelayed int                     `json:"pending_delayed"`
}

// Stats returns a point-in-time snapshot of the session.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Cache:          s.cache.Stats(),
		LoaderCache:    s.loader.CacheStats(),
		Strategies:     s.engine.Metrics().Snapshot(),
		Context:        s.contexts.Current(),
		Tabs:           len(s.tabs.Tabs()),
		PendingDelayed: s.inval.PendingDelayed(),
	}
}

// Tabs exposes the tab registry.
func (s *Session) Tabs() *tabs.Manager { return s.tabs }

// Contexts exposes the context manager.
func (s *Session) Contexts() *selctx.Manager { return s.contexts }

// Loader exposes the selector loader.
func (s *Session) Loader() *loader.Loader { return s.loader }

// Cache exposes the shared contextual cache.
func (s *Session) Cache() *cache.Contextual { return s.cache }

// Invalidation exposes the rule engine.
func (s *Session) Invalidation() *invalidation.Manager { return s.inval }

// Store exposes the observability store, or nil when persistence is off.
func (s *Session) Store() *observability.Store { return s.store }

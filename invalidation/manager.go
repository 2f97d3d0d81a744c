package invalidation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/domresolve/cache"
)

// Options configures a Manager.
type Options struct {
	// Grace is the default delay before a delayed eviction fires.
	Grace time.Duration
	// Tick is the delayed-processor wakeup interval.
	Tick time.Duration
	// StaleAge is the age past which entries are evicted by the
	// periodic rescan.
	StaleAge time.Duration
	// AuditCapacity bounds the in-memory audit ring.
	AuditCapacity int
	Logger        *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Grace <= 0 {
		o.Grace = 60 * time.Second
	}
	if o.Tick <= 0 {
		o.Tick = time.Minute
	}
	if o.StaleAge <= 0 {
		o.StaleAge = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// relatedContexts maps a context path to the paths whose cached data
// tends to go stale together with it.
var relatedContexts = map[string][]string{
	"extraction/match_list":    {"extraction/match_details", "extraction/match_stats"},
	"extraction/match_details": {"extraction/match_stats"},
	"extraction/match_stats":   {"extraction/match_details"},
	"navigation/filters":       {"extraction/match_list"},
}

// predictiveHints are content-change fragments that signal live data
// churn worth evicting ahead of demand.
var predictiveHints = []string{
	"score", "clock", "goal", "odds",
	"match started", "match finished",
}

// Manager matches cache events against rules and carries out the
// evictions. Apply is synchronous for immediate and selective rules;
// delayed rules hand off to the background processor started by Start.
type Manager struct {
	opts    Options
	cache   *cache.Contextual
	audit   *Audit
	delayed *delayedProcessor

	mu    sync.Mutex
	rules []Rule
}

// NewManager builds a manager with the built-in rule set.
func NewManager(c *cache.Contextual, opts Options) *Manager {
	opts.applyDefaults()
	audit := NewAudit(opts.AuditCapacity)
	m := &Manager{
		opts:    opts,
		cache:   c,
		audit:   audit,
		delayed: newDelayedProcessor(c, audit, opts.Logger, opts.Tick, opts.StaleAge),
	}
	m.rules = builtinRules(opts.Grace)
	return m
}

// builtinRules is the default rule set: DOM state changes and context
// changes evict immediately, tab switches evict the leaving tab's
// entries, idle contexts age out after a grace period, and content
// churn predictively evicts the related contexts.
func builtinRules(grace time.Duration) []Rule {
	return []Rule{
		{
			Name:     "dom-state-immediate",
			Strategy: StrategyImmediate,
			Matches: func(ev Event) bool {
				return ev.Type == EventDOMStateChange &&
					ev.FromState != "" && ev.FromState != "unknown" &&
					ev.FromState != ev.ToState
			},
			Targets: func(ev Event) []string {
				if ev.FromPath == "" {
					return nil
				}
				return []string{ev.FromPath + ":" + ev.FromState}
			},
		},
		{
			Name:     "context-change-immediate",
			Strategy: StrategyImmediate,
			Matches: func(ev Event) bool {
				return ev.Type == EventContextChange && ev.FromPath != "" &&
					!strings.HasPrefix(ev.ToPath+"/", ev.FromPath+"/")
			},
			Targets: func(ev Event) []string {
				return []string{ev.FromPath}
			},
		},
		{
			Name:     "tab-switch-selective",
			Strategy: StrategySelective,
			Matches: func(ev Event) bool {
				return ev.Type == EventTabSwitch && ev.FromTabID != "" &&
					ev.FromTabID != ev.ToTabID
			},
			Targets: func(ev Event) []string {
				return []string{"tab:" + ev.FromTabID}
			},
		},
		{
			Name:     "navigation-delayed",
			Strategy: StrategyDelayed,
			Delay:    grace,
			Matches: func(ev Event) bool {
				return ev.Type == EventNavigation && ev.FromPath != ""
			},
			Targets: func(ev Event) []string {
				return []string{ev.FromPath}
			},
		},
		{
			Name:     "content-predictive",
			Strategy: StrategyPredictive,
			Matches: func(ev Event) bool {
				if ev.Type != EventContentChange {
					return false
				}
				hint := strings.ToLower(ev.ContentHint)
				for _, h := range predictiveHints {
					if strings.Contains(hint, h) {
						return true
					}
				}
				return false
			},
			Targets: func(ev Event) []string {
				return relatedContexts[ev.ToPath]
			},
		},
	}
}

// AddRule appends a custom rule.
func (m *Manager) AddRule(r Rule) {
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// Start launches the delayed-eviction processor; it stops when ctx ends.
func (m *Manager) Start(ctx context.Context) {
	go m.delayed.run(ctx)
}

// Apply matches the event against every rule and executes the matching
// ones. Immediate, selective and predictive evictions happen before
// Apply returns; delayed ones are scheduled. Returns the keys evicted
// synchronously.
func (m *Manager) Apply(ev Event) []string {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.mu.Lock()
	rules := make([]Rule, len(m.rules))
	copy(rules, m.rules)
	m.mu.Unlock()

	var evicted []string
	for _, r := range rules {
		if r.Matches == nil || !r.Matches(ev) {
			continue
		}
		targets := r.Targets(ev)
		if len(targets) == 0 {
			continue
		}
		switch r.Strategy {
		case StrategyDelayed:
			grace := r.Delay
			if grace <= 0 {
				grace = m.opts.Grace
			}
			for _, frag := range targets {
				m.delayed.schedule(r.Name, ev, frag, grace)
			}
			m.audit.Add(r.Name, r.Strategy, ev, targets)
			m.opts.Logger.Debug("invalidation: scheduled",
				"rule", r.Name, "targets", targets, "grace", grace)
		default:
			var keys []string
			for _, frag := range targets {
				keys = append(keys, m.cache.EvictContaining(frag)...)
			}
			evicted = append(evicted, keys...)
			m.audit.Add(r.Name, r.Strategy, ev, keys)
			m.opts.Logger.Debug("invalidation: evicted",
				"rule", r.Name, "strategy", r.Strategy, "count", len(keys))
		}
	}

	// A context becoming active again rescues its pending eviction.
	if ev.Type == EventContextChange || ev.Type == EventNavigation {
		if ev.ToPath != "" {
			m.delayed.cancel(ev.ToPath)
		}
	}
	return evicted
}

// Audit exposes the audit trail.
func (m *Manager) Audit() *Audit { return m.audit }

// PendingDelayed reports how many delayed evictions are queued.
func (m *Manager) PendingDelayed() int { return m.delayed.pendingCount() }

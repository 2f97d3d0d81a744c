package invalidation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/domresolve/cache"
)

// delayedEviction is one fragment waiting out its grace period. If the
// fragment is re-scheduled before it fires, the later due time wins.
type delayedEviction struct {
	rule     string
	event    Event
	fragment string
	dueAt    time.Time
}

// delayedProcessor runs scheduled evictions and the periodic staleness
// rescan in the background. It never evicts a partial batch: every
// fragment due at tick time is processed before the tick returns.
type delayedProcessor struct {
	cache  *cache.Contextual
	audit  *Audit
	logger *slog.Logger

	tick     time.Duration
	staleAge time.Duration

	mu      sync.Mutex
	pending map[string]delayedEviction // fragment -> eviction
}

func newDelayedProcessor(c *cache.Contextual, audit *Audit, logger *slog.Logger, tick, staleAge time.Duration) *delayedProcessor {
	if tick <= 0 {
		tick = time.Minute
	}
	if staleAge <= 0 {
		staleAge = 5 * time.Minute
	}
	return &delayedProcessor{
		cache: c, audit: audit, logger: logger,
		tick: tick, staleAge: staleAge,
		pending: make(map[string]delayedEviction),
	}
}

// schedule queues a fragment for eviction after the grace period.
func (p *delayedProcessor) schedule(rule string, ev Event, fragment string, grace time.Duration) {
	p.mu.Lock()
	p.pending[fragment] = delayedEviction{
		rule: rule, event: ev, fragment: fragment,
		dueAt: time.Now().Add(grace),
	}
	p.mu.Unlock()
}

// cancel drops a pending eviction, typically because the context became
// active again before the grace period ran out.
func (p *delayedProcessor) cancel(fragment string) {
	p.mu.Lock()
	delete(p.pending, fragment)
	p.mu.Unlock()
}

// pendingCount reports queued evictions, for stats.
func (p *delayedProcessor) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// run processes due evictions and staleness rescans until ctx ends.
// On shutdown the queue is drained so nothing scheduled is lost.
func (p *delayedProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.logger.Debug("invalidation: delayed processor stopped")
			return
		case now := <-ticker.C:
			p.evictDue(now)
			p.rescanStale()
		}
	}
}

// evictDue evicts every fragment whose grace period has elapsed.
func (p *delayedProcessor) evictDue(now time.Time) {
	p.mu.Lock()
	var due []delayedEviction
	for frag, d := range p.pending {
		if !d.dueAt.After(now) {
			due = append(due, d)
			delete(p.pending, frag)
		}
	}
	p.mu.Unlock()

	for _, d := range due {
		keys := p.cache.EvictContaining(d.fragment)
		p.audit.Add(d.rule, StrategyDelayed, d.event, keys)
		p.logger.Debug("invalidation: delayed eviction",
			"rule", d.rule, "fragment", d.fragment, "evicted", len(keys))
	}
}

// drain runs every pending eviction regardless of due time.
func (p *delayedProcessor) drain() {
	p.evictDue(time.Now().Add(365 * 24 * time.Hour))
}

// rescanStale deletes extraction-context entries past the staleness
// age. Other contexts age out through their TTLs alone.
func (p *delayedProcessor) rescanStale() {
	stale := p.cache.StaleKeys(p.staleAge, "extraction")
	if len(stale) == 0 {
		return
	}
	for _, k := range stale {
		p.cache.LRU().Delete(k)
	}
	p.audit.Add("staleness-rescan", StrategyDelayed, Event{Type: EventManual, At: time.Now()}, stale)
	p.logger.Debug("invalidation: staleness rescan evicted", "count", len(stale))
}

// Package cache provides the bounded LRU cache and its context-aware
// wrapper used across the resolution core. The cache is bounded both by
// entry count and by aggregate byte size, supports per-entry TTL, and
// keeps hit/miss/eviction counters plus a rolling access-latency average.
//
// All mutation is serialised behind a single mutex: background sweeps,
// delayed invalidation and foreground lookups interleave freely.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Entry is one cached record. Owned exclusively by the cache; callers
// only ever see copies via introspection.
type Entry struct {
	Key            string
	Value          any
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	SizeBytes      int64
	TTL            time.Duration // 0 means no expiry
}

func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) >= e.TTL
}

// Options tunes an LRU instance.
type Options struct {
	// MaxSize bounds the entry count. Default: 1000.
	MaxSize int
	// MaxMemoryBytes bounds the tracked aggregate size. Default: 50 MiB.
	MaxMemoryBytes int64
	// DefaultTTL applies when Put is called with ttl 0 and the cache
	// should still expire entries. 0 disables the default.
	DefaultTTL time.Duration
	// SweepInterval is the period of the background cleanup loop
	// started by StartSweeper. Default: 30s.
	SweepInterval time.Duration
	// Logger overrides slog.Default().
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxSize <= 0 {
		o.MaxSize = 1000
	}
	if o.MaxMemoryBytes <= 0 {
		o.MaxMemoryBytes = 50 << 20
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries          int           `json:"entries"`
	MemoryBytes      int64         `json:"memory_bytes"`
	MaxSize          int           `json:"max_size"`
	MaxMemoryBytes   int64         `json:"max_memory_bytes"`
	Hits             int64         `json:"hits"`
	Misses           int64         `json:"misses"`
	Evictions        int64         `json:"evictions"`
	Expirations      int64         `json:"expirations"`
	HitRate          float64       `json:"hit_rate"`
	AvgAccessLatency time.Duration `json:"avg_access_latency"`
}

// LRU is the generic bounded cache. A single mutex serialises all
// mutation; every operation is O(1) amortised except eviction scans.
type LRU struct {
	opts Options

	mu lockedState
}

// lockedState groups everything guarded by the mutex so the lock
// discipline is visible at the type level.
type lockedState struct {
	sync.Mutex
	ll          *list.List // front = most recently used
	items       map[string]*list.Element
	memory      int64
	hits        int64
	misses      int64
	evictions   int64
	expirations int64
	emaNs       float64 // exponential moving average, alpha 0.1
}

// New creates an LRU cache.
func New(opts Options) *LRU {
	opts.defaults()
	c := &LRU{opts: opts}
	c.mu.ll = list.New()
	c.mu.items = make(map[string]*list.Element)
	return c
}

const emaAlpha = 0.1

// Get returns the cached value and promotes the entry to most recently
// used. A TTL-expired entry is purged and counted as a miss.
func (c *LRU) Get(key string) (any, bool) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.observeLocked(start)

	el, ok := c.mu.items[key]
	if !ok {
		c.mu.misses++
		return nil, false
	}
	e := el.Value.(*Entry)
	if e.expired(time.Now()) {
		c.removeLocked(el)
		c.mu.expirations++
		c.mu.misses++
		return nil, false
	}
	e.LastAccessedAt = time.Now()
	e.AccessCount++
	c.mu.ll.MoveToFront(el)
	c.mu.hits++
	return e.Value, true
}

// Put stores a value. ttl 0 falls back to the configured DefaultTTL;
// size 0 lets the cache estimate. Returns an error only when the value
// alone exceeds the memory cap.
func (c *LRU) Put(key string, value any, ttl time.Duration, size int64) error {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	if size <= 0 {
		size = EstimateSize(value)
	}
	if size > c.opts.MaxMemoryBytes {
		return fmt.Errorf("cache: value for %q (%d bytes) exceeds memory cap %d", key, size, c.opts.MaxMemoryBytes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.mu.items[key]; ok {
		// Replace in place.
		e := el.Value.(*Entry)
		c.mu.memory += size - e.SizeBytes
		e.Value = value
		e.SizeBytes = size
		e.TTL = ttl
		e.CreatedAt = now
		e.LastAccessedAt = now
		c.mu.ll.MoveToFront(el)
	} else {
		e := &Entry{
			Key: key, Value: value,
			CreatedAt: now, LastAccessedAt: now,
			SizeBytes: size, TTL: ttl,
		}
		c.mu.items[key] = c.mu.ll.PushFront(e)
		c.mu.memory += size
	}

	// Memory pressure: evict oldest-created entries first.
	for c.mu.memory > c.opts.MaxMemoryBytes {
		if !c.evictOldestCreatedLocked(key) {
			break
		}
	}
	// Entry-count pressure: strict LRU.
	for c.mu.ll.Len() > c.opts.MaxSize {
		c.removeLocked(c.mu.ll.Back())
		c.mu.evictions++
	}
	return nil
}

// Delete removes a single key. Reports whether it was present.
func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.mu.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// DeleteWhere removes every entry whose key satisfies pred and returns
// the removed keys. Used by the invalidation rule engine.
func (c *LRU) DeleteWhere(pred func(key string) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for key, el := range c.mu.items {
		if pred(key) {
			c.removeLocked(el)
			c.mu.evictions++
			removed = append(removed, key)
		}
	}
	return removed
}

// Keys returns all live keys, unordered.
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.mu.items))
	for k := range c.mu.items {
		out = append(out, k)
	}
	return out
}

// KeysOlderThan returns keys whose entries were created before the
// cutoff and match the optional prefix. Used by staleness rules.
func (c *LRU) KeysOlderThan(age time.Duration, prefix string) []string {
	cutoff := time.Now().Add(-age)
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for k, el := range c.mu.items {
		e := el.Value.(*Entry)
		if e.CreatedAt.Before(cutoff) && (prefix == "" || len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, k)
		}
	}
	return out
}

// Len returns the live entry count.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.ll.Len()
}

// MemoryBytes returns the tracked aggregate size.
func (c *LRU) MemoryBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.memory
}

// Stats returns a snapshot of the counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Entries:        c.mu.ll.Len(),
		MemoryBytes:    c.mu.memory,
		MaxSize:        c.opts.MaxSize,
		MaxMemoryBytes: c.opts.MaxMemoryBytes,
		Hits:           c.mu.hits,
		Misses:         c.mu.misses,
		Evictions:      c.mu.evictions,
		Expirations:    c.mu.expirations,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	s.AvgAccessLatency = time.Duration(c.mu.emaNs)
	return s
}

// Sweep removes TTL-expired entries, then relieves memory pressure:
// above 80% of the cap it evicts by creation time down to 60%.
func (c *LRU) Sweep() (removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for el := c.mu.ll.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*Entry).expired(now) {
			c.removeLocked(el)
			c.mu.expirations++
			removed++
		}
		el = next
	}

	high := c.opts.MaxMemoryBytes * 8 / 10
	low := c.opts.MaxMemoryBytes * 6 / 10
	if c.mu.memory > high {
		for c.mu.memory > low {
			if !c.evictOldestCreatedLocked("") {
				break
			}
			removed++
		}
	}
	return removed
}

// StartSweeper runs the periodic sweep until ctx is cancelled. Errors
// never escape: a sweep failure is logged and the loop continues.
func (c *LRU) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()
	log := c.opts.Logger

	log.Debug("cache: sweeper started", "interval", c.opts.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Debug("cache: sweeper stopped")
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				log.Debug("cache: sweep removed entries", "count", n)
			}
		}
	}
}

// observeLocked folds one access latency sample into the EMA.
func (c *LRU) observeLocked(start time.Time) {
	sample := float64(time.Since(start).Nanoseconds())
	if c.mu.emaNs == 0 {
		c.mu.emaNs = sample
		return
	}
	c.mu.emaNs = emaAlpha*sample + (1-emaAlpha)*c.mu.emaNs
}

func (c *LRU) removeLocked(el *list.Element) {
	e := el.Value.(*Entry)
	c.mu.ll.Remove(el)
	delete(c.mu.items, e.Key)
	c.mu.memory -= e.SizeBytes
}

// evictOldestCreatedLocked drops the entry with the earliest CreatedAt,
// skipping the given key (the one just inserted). Returns false when
// nothing could be evicted.
func (c *LRU) evictOldestCreatedLocked(skip string) bool {
	var oldest *list.Element
	var oldestAt time.Time
	for el := c.mu.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		if e.Key == skip {
			continue
		}
		if oldest == nil || e.CreatedAt.Before(oldestAt) {
			oldest = el
			oldestAt = e.CreatedAt
		}
	}
	if oldest == nil {
		return false
	}
	c.removeLocked(oldest)
	c.mu.evictions++
	return true
}

// Sizer lets cached values report their own footprint.
type Sizer interface {
	SizeBytes() int64
}

// EstimateSize guesses the footprint of a value. Strings and byte
// slices are exact; Sizer implementations self-report; everything else
// is measured through its JSON encoding, falling back to a flat 512.
func EstimateSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case Sizer:
		return x.SizeBytes()
	}
	if b, err := json.Marshal(v); err == nil {
		return int64(len(b))
	}
	return 512
}

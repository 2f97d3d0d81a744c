package cache

import (
	"strings"
	"time"
)

// Contextual namespaces cache entries by navigation context and DOM
// state, and scales TTLs by how volatile that context is: deep context
// paths live longer (they change less often), dynamic DOM states live
// shorter (live pages mutate constantly).
type Contextual struct {
	lru     *LRU
	baseTTL time.Duration
}

// Dynamic DOM states halve the effective TTL.
var dynamicStates = map[string]bool{
	"live": true, "scheduled": true, "finished": true,
}

// NewContextual wraps an LRU with context-aware keying. baseTTL is the
// reference TTL before multipliers; 0 falls back to 5 minutes.
func NewContextual(lru *LRU, baseTTL time.Duration) *Contextual {
	if baseTTL <= 0 {
		baseTTL = 5 * time.Minute
	}
	return &Contextual{lru: lru, baseTTL: baseTTL}
}

// Key builds the namespaced cache key for a context path, DOM state and
// sub-key. The domState segment is omitted when empty or unknown.
func Key(path, domState, subkey string) string {
	var b strings.Builder
	b.WriteString("context:")
	b.WriteString(path)
	if domState != "" && domState != "unknown" {
		b.WriteByte(':')
		b.WriteString(domState)
	}
	if subkey != "" {
		b.WriteByte(':')
		b.WriteString(subkey)
	}
	return b.String()
}

// EffectiveTTL computes base × contextMultiplier × dynamicContentMultiplier.
// Multi-level paths double the TTL; dynamic DOM states halve it.
func EffectiveTTL(base time.Duration, path, domState string) time.Duration {
	ttl := float64(base)
	if strings.Contains(path, "/") {
		ttl *= 2.0
	}
	if dynamicStates[domState] {
		ttl *= 0.5
	}
	return time.Duration(ttl)
}

// Put stores a value under the namespaced key with the effective TTL.
func (c *Contextual) Put(path, domState, subkey string, value any) error {
	ttl := EffectiveTTL(c.baseTTL, path, domState)
	return c.lru.Put(Key(path, domState, subkey), value, ttl, 0)
}

// Get retrieves a value stored with Put.
func (c *Contextual) Get(path, domState, subkey string) (any, bool) {
	return c.lru.Get(Key(path, domState, subkey))
}

// Delete removes one namespaced entry.
func (c *Contextual) Delete(path, domState, subkey string) bool {
	return c.lru.Delete(Key(path, domState, subkey))
}

// EvictContaining removes every entry whose key contains the fragment.
// Returns the evicted keys. This is the primitive the invalidation rule
// engine and the context manager build on.
func (c *Contextual) EvictContaining(fragment string) []string {
	if fragment == "" {
		return nil
	}
	return c.lru.DeleteWhere(func(key string) bool {
		return strings.Contains(key, fragment)
	})
}

// StaleKeys returns namespaced keys older than age whose path starts
// with pathPrefix.
func (c *Contextual) StaleKeys(age time.Duration, pathPrefix string) []string {
	return c.lru.KeysOlderThan(age, "context:"+pathPrefix)
}

// Keys lists all live namespaced keys.
func (c *Contextual) Keys() []string { return c.lru.Keys() }

// Stats exposes the underlying cache counters.
func (c *Contextual) Stats() Stats { return c.lru.Stats() }

// LRU returns the wrapped cache, for callers that need the generic
// surface (sweeper startup, direct deletes).
func (c *Contextual) LRU() *LRU { return c.lru }

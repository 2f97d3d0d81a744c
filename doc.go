// Package domresolve assembles the resolution and caching stack into
// one session: strategy-based element resolution, context-aware
// caching and invalidation, layered selector loading, tab isolation
// and SQLite observability. A Session is the single entry point; the
// MCP and HTTP surfaces in this package expose it over the wire.
package domresolve

// Package observability persists resolution outcomes, cache
// invalidations and navigation events to SQLite for offline analysis.
//
// All persistence is async and non-blocking: a full buffer falls back
// to a synchronous insert rather than applying backpressure to the
// resolution path. The store keeps its own database, separate from any
// application data, to avoid write contention.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/domresolve/idgen"
)

// ResolutionEntry is one selector resolution outcome.
type ResolutionEntry struct {
	EntryID       string
	Timestamp     time.Time
	SelectorName  string
	StrategyType  string
	StrategyID    string
	ContextPath   string
	DOMState      string
	TabID         string
	Success       bool
	Confidence    float64
	DurationMs    int64
	FromCache     bool
	FailureReason string
}

// InvalidationEntry is one cache invalidation.
type InvalidationEntry struct {
	EntryID     string
	Timestamp   time.Time
	RuleName    string
	Strategy    string
	EventType   string
	ContextPath string
	EvictedKeys []string
}

// NavigationEntry is one navigation or context-switch event.
type NavigationEntry struct {
	EntryID     string
	Timestamp   time.Time
	EventType   string
	URL         string
	ContextPath string
	DOMState    string
	TabID       string
}

// StrategySnapshot is one periodic per-strategy counter snapshot.
type StrategySnapshot struct {
	StrategyType string
	Attempts     int64
	Successes    int64
	AvgLatencyMs float64
	Timestamp    time.Time
}

// record is the union the flush loop consumes.
type record struct {
	resolution   *ResolutionEntry
	invalidation *InvalidationEntry
	navigation   *NavigationEntry
	snapshot     *StrategySnapshot
}

// Store buffers records and flushes them to SQLite in batches.
type Store struct {
	db   *sql.DB
	ch   chan record
	stop chan struct{}
	done chan struct{}
}

// NewStore creates an async store. Recommended bufferSize: 1000. The
// schema must already be applied (Init).
func NewStore(db *sql.DB, bufferSize int) *Store {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	s := &Store{
		db:   db,
		ch:   make(chan record, bufferSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// RecordResolution queues a resolution entry. Falls back to a
// synchronous insert when the buffer is full.
func (s *Store) RecordResolution(e *ResolutionEntry) {
	fillDefaults(&e.EntryID, &e.Timestamp)
	s.enqueue(record{resolution: e})
}

// RecordInvalidation queues an invalidation entry.
func (s *Store) RecordInvalidation(e *InvalidationEntry) {
	fillDefaults(&e.EntryID, &e.Timestamp)
	s.enqueue(record{invalidation: e})
}

// RecordNavigation queues a navigation entry.
func (s *Store) RecordNavigation(e *NavigationEntry) {
	fillDefaults(&e.EntryID, &e.Timestamp)
	s.enqueue(record{navigation: e})
}

// RecordStrategySnapshot queues a per-strategy counter snapshot.
func (s *Store) RecordStrategySnapshot(snap *StrategySnapshot) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	s.enqueue(record{snapshot: snap})
}

func (s *Store) enqueue(r record) {
	select {
	case s.ch <- r:
	default:
		slog.Warn("observability: buffer full, sync fallback")
		if err := s.insert(context.Background(), r); err != nil {
			slog.Error("observability: sync fallback failed", "error", err)
		}
	}
}

// Close drains the buffer and stops the flush goroutine.
func (s *Store) Close() error {
	close(s.stop)
	<-s.done
	return nil
}

// Cleanup deletes entries older than retentionDays across all tables
// and returns the total rows removed.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	var total int64
	for _, table := range []string{"resolution_log", "invalidation_log", "navigation_log", "strategy_metrics"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", threshold)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func fillDefaults(id *string, ts *time.Time) {
	if *id == "" {
		*id = idgen.New()
	}
	if ts.IsZero() {
		*ts = time.Now()
	}
}

func (s *Store) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	batch := make([]record, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			slog.Error("observability: begin tx", "error", err)
			return
		}
		for _, r := range batch {
			if err := insertTx(ctx, tx, r); err != nil {
				slog.Error("observability: insert", "error", err)
			}
		}
		if err := tx.Commit(); err != nil {
			slog.Error("observability: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-s.stop:
			// drain channel
			for {
				select {
				case r := <-s.ch:
					batch = append(batch, r)
				default:
					flush()
					return
				}
			}
		case r := <-s.ch:
			batch = append(batch, r)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, r record) error {
	return insertTx(ctx, s.db, r)
}

func insertTx(ctx context.Context, db execer, r record) error {
	switch {
	case r.resolution != nil:
		e := r.resolution
		_, err := db.ExecContext(ctx, `INSERT INTO resolution_log
			(entry_id, timestamp, selector_name, strategy_type, strategy_id,
			 context_path, dom_state, tab_id, success, confidence,
			 duration_ms, from_cache, failure_reason)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.EntryID, e.Timestamp.Unix(), e.SelectorName, e.StrategyType, e.StrategyID,
			e.ContextPath, e.DOMState, e.TabID, e.Success, e.Confidence,
			e.DurationMs, e.FromCache, e.FailureReason)
		return err
	case r.invalidation != nil:
		e := r.invalidation
		var keysJSON sql.NullString
		if len(e.EvictedKeys) > 0 {
			if b, err := json.Marshal(e.EvictedKeys); err == nil {
				keysJSON = sql.NullString{String: string(b), Valid: true}
			}
		}
		_, err := db.ExecContext(ctx, `INSERT INTO invalidation_log
			(entry_id, timestamp, rule_name, strategy, event_type,
			 context_path, evicted_count, evicted_keys)
			VALUES (?,?,?,?,?,?,?,?)`,
			e.EntryID, e.Timestamp.Unix(), e.RuleName, e.Strategy, e.EventType,
			e.ContextPath, len(e.EvictedKeys), keysJSON)
		return err
	case r.navigation != nil:
		e := r.navigation
		_, err := db.ExecContext(ctx, `INSERT INTO navigation_log
			(entry_id, timestamp, event_type, url, context_path, dom_state, tab_id)
			VALUES (?,?,?,?,?,?,?)`,
			e.EntryID, e.Timestamp.Unix(), e.EventType, e.URL, e.ContextPath, e.DOMState, e.TabID)
		return err
	case r.snapshot != nil:
		e := r.snapshot
		_, err := db.ExecContext(ctx, `INSERT INTO strategy_metrics
			(entry_id, timestamp, strategy_type, attempts, successes, avg_latency_ms)
			VALUES (?,?,?,?,?,?)`,
			idgen.New(), e.Timestamp.Unix(), e.StrategyType, e.Attempts, e.Successes, e.AvgLatencyMs)
		return err
	}
	return nil
}

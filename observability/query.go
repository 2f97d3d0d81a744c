package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ResolutionFilter controls query results from the resolution log.
type ResolutionFilter struct {
	StartTime    *time.Time
	EndTime      *time.Time
	SelectorName *string
	StrategyType *string
	SuccessOnly  bool
	FailedOnly   bool
	Limit        int // default 100
}

// Resolutions retrieves resolution entries matching the filter, newest
// first.
func (s *Store) Resolutions(ctx context.Context, f *ResolutionFilter) ([]*ResolutionEntry, error) {
	q := `SELECT entry_id, timestamp, selector_name, strategy_type, strategy_id,
		context_path, dom_state, tab_id, success, confidence,
		duration_ms, from_cache, failure_reason
		FROM resolution_log WHERE 1=1`
	var args []any

	if f.StartTime != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.StartTime.Unix())
	}
	if f.EndTime != nil {
		q += " AND timestamp <= ?"
		args = append(args, f.EndTime.Unix())
	}
	if f.SelectorName != nil {
		q += " AND selector_name = ?"
		args = append(args, *f.SelectorName)
	}
	if f.StrategyType != nil {
		q += " AND strategy_type = ?"
		args = append(args, *f.StrategyType)
	}
	if f.SuccessOnly {
		q += " AND success = 1"
	}
	if f.FailedOnly {
		q += " AND success = 0"
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query resolution log: %w", err)
	}
	defer rows.Close()

	var out []*ResolutionEntry
	for rows.Next() {
		var e ResolutionEntry
		var ts int64
		var strategyType, strategyID, contextPath, domState, tabID, failureReason sql.NullString
		var confidence sql.NullFloat64
		var durationMs sql.NullInt64

		if err := rows.Scan(
			&e.EntryID, &ts, &e.SelectorName, &strategyType, &strategyID,
			&contextPath, &domState, &tabID, &e.Success, &confidence,
			&durationMs, &e.FromCache, &failureReason,
		); err != nil {
			return nil, fmt.Errorf("scan resolution entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.StrategyType = strategyType.String
		e.StrategyID = strategyID.String
		e.ContextPath = contextPath.String
		e.DOMState = domState.String
		e.TabID = tabID.String
		e.FailureReason = failureReason.String
		e.Confidence = confidence.Float64
		e.DurationMs = durationMs.Int64
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Invalidations retrieves the most recent invalidation entries.
func (s *Store) Invalidations(ctx context.Context, limit int) ([]*InvalidationEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT entry_id, timestamp, rule_name,
		strategy, event_type, context_path, evicted_keys
		FROM invalidation_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invalidation log: %w", err)
	}
	defer rows.Close()

	var out []*InvalidationEntry
	for rows.Next() {
		var e InvalidationEntry
		var ts int64
		var contextPath, keysJSON sql.NullString
		if err := rows.Scan(&e.EntryID, &ts, &e.RuleName, &e.Strategy, &e.EventType, &contextPath, &keysJSON); err != nil {
			return nil, fmt.Errorf("scan invalidation entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.ContextPath = contextPath.String
		if keysJSON.Valid {
			var keys []string
			if json.Unmarshal([]byte(keysJSON.String), &keys) == nil {
				e.EvictedKeys = keys
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// NavigationTrail retrieves the most recent navigation entries for a
// tab; empty tabID means all tabs.
func (s *Store) NavigationTrail(ctx context.Context, tabID string, limit int) ([]*NavigationEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT entry_id, timestamp, event_type, url, context_path, dom_state, tab_id
		FROM navigation_log WHERE 1=1`
	var args []any
	if tabID != "" {
		q += " AND tab_id = ?"
		args = append(args, tabID)
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query navigation log: %w", err)
	}
	defer rows.Close()

	var out []*NavigationEntry
	for rows.Next() {
		var e NavigationEntry
		var ts int64
		var url, contextPath, domState, tab sql.NullString
		if err := rows.Scan(&e.EntryID, &ts, &e.EventType, &url, &contextPath, &domState, &tab); err != nil {
			return nil, fmt.Errorf("scan navigation entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.URL = url.String
		e.ContextPath = contextPath.String
		e.DOMState = domState.String
		e.TabID = tab.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// StrategySuccessRates aggregates the resolution log per strategy type.
func (s *Store) StrategySuccessRates(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT strategy_type,
		AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END)
		FROM resolution_log WHERE strategy_type != ''
		GROUP BY strategy_type`)
	if err != nil {
		return nil, fmt.Errorf("query success rates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var strategyType string
		var rate float64
		if err := rows.Scan(&strategyType, &rate); err != nil {
			return nil, fmt.Errorf("scan success rate: %w", err)
		}
		out[strategyType] = rate
	}
	return out, rows.Err()
}

package observability

import "database/sql"

// Schema contains the complete DDL for the resolution observability
// tables. Call Init(db) to apply it, or embed the constant in your own
// schema management.
const Schema = `
-- Selector resolutions
CREATE TABLE IF NOT EXISTS resolution_log (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    selector_name TEXT NOT NULL,
    strategy_type TEXT,
    strategy_id TEXT,
    context_path TEXT,
    dom_state TEXT,
    tab_id TEXT,
    success INTEGER NOT NULL,
    confidence REAL,
    duration_ms INTEGER,
    from_cache INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_resolution_timestamp ON resolution_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_resolution_selector ON resolution_log(selector_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_resolution_success ON resolution_log(success);

-- Cache invalidations
CREATE TABLE IF NOT EXISTS invalidation_log (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    rule_name TEXT NOT NULL,
    strategy TEXT NOT NULL,
    event_type TEXT NOT NULL,
    context_path TEXT,
    evicted_count INTEGER NOT NULL,
    evicted_keys TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_invalidation_timestamp ON invalidation_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_invalidation_rule ON invalidation_log(rule_name, timestamp DESC);

-- Navigation events
CREATE TABLE IF NOT EXISTS navigation_log (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    url TEXT,
    context_path TEXT,
    dom_state TEXT,
    tab_id TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_navigation_timestamp ON navigation_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_navigation_tab ON navigation_log(tab_id, timestamp DESC);

-- Per-strategy counters, snapshotted periodically
CREATE TABLE IF NOT EXISTS strategy_metrics (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    strategy_type TEXT NOT NULL,
    attempts INTEGER NOT NULL,
    successes INTEGER NOT NULL,
    avg_latency_ms REAL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_strategy_metrics_type
    ON strategy_metrics(strategy_type, timestamp DESC);

-- Metadata registry
CREATE TABLE IF NOT EXISTS _observability_metadata (
    table_name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    description TEXT
);
INSERT OR IGNORE INTO _observability_metadata (table_name, description) VALUES
    ('resolution_log', 'Per-selector resolution outcomes'),
    ('invalidation_log', 'Cache invalidation audit trail'),
    ('navigation_log', 'Navigation and context-switch events'),
    ('strategy_metrics', 'Periodic per-strategy counter snapshots');
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

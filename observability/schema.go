package observability

import "database/sql"

// Schema contains the DDL for the find observability tables. Open applies
// it; Init is exposed for callers that manage their own *sql.DB.
const Schema = `
-- Host commands and their outcome
CREATE TABLE IF NOT EXISTS find_commands (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    frame_id TEXT NOT NULL,
    instance_id TEXT NOT NULL,
    action TEXT NOT NULL,
    search_term TEXT,
    status TEXT NOT NULL,
    error_message TEXT,
    duration_ms INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_commands_instance ON find_commands(instance_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_commands_status ON find_commands(status);

-- Updates published to the host
CREATE TABLE IF NOT EXISTS find_updates (
    update_id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER NOT NULL,
    instance_id TEXT NOT NULL,
    action TEXT NOT NULL,
    op_token TEXT NOT NULL,
    search_term TEXT,
    total_matches INTEGER NOT NULL,
    current_match INTEGER NOT NULL,
    payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_updates_instance ON find_updates(instance_id, update_id DESC);
CREATE INDEX IF NOT EXISTS idx_updates_timestamp ON find_updates(timestamp);

-- Metrics Timeseries
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);

-- Process heartbeats
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    worker_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    worker_pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    memory_sys_mb REAL,
    gc_count INTEGER,
    frames_count INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

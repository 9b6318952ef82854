package repository

// Schema definitions for the Warden database.
// Compatible with both SQLite and PostgreSQL.

const schemaViolationEvents = `
CREATE TABLE IF NOT EXISTS violation_events (
    id TEXT PRIMARY KEY,
    employee_id TEXT NOT NULL,
    employee_name TEXT,
    kind TEXT NOT NULL,
    reason TEXT NOT NULL,
    source_type TEXT NOT NULL,
    source_batch_id TEXT,
    source_metadata TEXT,
    created_at TIMESTAMP NOT NULL,
    is_effective INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_events_employee ON violation_events(employee_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_created ON violation_events(created_at);
CREATE INDEX IF NOT EXISTS idx_events_source ON violation_events(source_type);
CREATE INDEX IF NOT EXISTS idx_events_batch ON violation_events(source_batch_id);
CREATE INDEX IF NOT EXISTS idx_events_effective ON violation_events(employee_id, is_effective, created_at);
`

const schemaMetricSnapshots = `
CREATE TABLE IF NOT EXISTS metric_snapshots (
    employee_id TEXT NOT NULL,
    window_start TIMESTAMP NOT NULL,
    window_end TIMESTAMP NOT NULL,
    timeout_rate REAL NOT NULL,
    message_leads INTEGER NOT NULL,
    published_notes INTEGER NOT NULL,
    response_window_start TIMESTAMP,
    response_window_end TIMESTAMP,
    collected_at TIMESTAMP NOT NULL,
    PRIMARY KEY (employee_id, window_start, window_end)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_employee ON metric_snapshots(employee_id, collected_at);
`

const schemaEmployees = `
CREATE TABLE IF NOT EXISTS employees (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaViolationEvents,
		schemaMetricSnapshots,
		schemaEmployees,
	}
}

package postgres

import (
	"context"
	"fmt"
)

// Schema creates the run report tables. Statements are idempotent.
const Schema = `CREATE TABLE IF NOT EXISTS obfuscation_runs (
	run_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	output TEXT,
	succeeded BOOLEAN NOT NULL,
	failed_stage TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS obfuscation_runs_source_idx ON obfuscation_runs (source, started_at DESC);
CREATE TABLE IF NOT EXISTS obfuscation_stages (
	run_id TEXT NOT NULL REFERENCES obfuscation_runs (run_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	executed BOOLEAN NOT NULL,
	succeeded BOOLEAN NOT NULL,
	failure TEXT,
	stdout_path TEXT,
	stderr_path TEXT,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	PRIMARY KEY (run_id, position)
);`

func EnsureSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

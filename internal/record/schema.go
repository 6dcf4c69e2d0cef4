package record

import (
	"database/sql"
	"fmt"
)

// Schema for the local flight-recorder store. One row per run, one row per
// recorded step. Kept deliberately flat; this is a capture log, not the
// engine's history store.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL,
	algorithm     TEXT NOT NULL,
	grid_width    INTEGER NOT NULL,
	grid_height   INTEGER NOT NULL,
	started_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_samples (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	step             INTEGER NOT NULL,
	avg_waiting_time REAL NOT NULL,
	total_delay      REAL NOT NULL,
	throughput       INTEGER NOT NULL,
	avg_speed        REAL NOT NULL,
	vehicle_count    INTEGER NOT NULL,
	recorded_at      DATETIME NOT NULL,
	PRIMARY KEY (run_id, step)
);

CREATE INDEX IF NOT EXISTS idx_samples_run ON metric_samples(run_id, step);
`

// applySchema bootstraps the tables and verifies they exist afterwards.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply recorder schema: %w", err)
	}
	for _, table := range []string{"runs", "metric_samples"} {
		exists, err := tableExists(db, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s missing after bootstrap", table)
		}
	}
	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

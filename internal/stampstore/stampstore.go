// Package stampstore keeps a small on-disk ledger of generator runs: one
// row per invocation recording when it ran, which destination directory
// it populated, the run's summary counts, and the set of unit names it
// wrote. cmd/cron-stamp-gc consults the most recent run to know exactly
// which stamp-cron-* files still correspond to an emitted timer unit
// (sharper than the original's glob-diff against /run/systemd/generator);
// cmd/cron-inspect reads it to answer "what did the last run do".
//
// Grounded on internal/store/sqlite.go's sql.Open("sqlite",
// path+"?_journal=WAL&...") connection setup, reduced from a generic
// process-history store to the one table this system needs.
package stampstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection backing the ledger.
type Store struct {
	db *sql.DB
}

// Run is one recorded generation pass.
type Run struct {
	ID              int64
	RanAt           time.Time
	DestinationDir  string
	TablesProcessed int
	JobsTruncated   int
	JobsSkipped     int
	JobsMasked      int
	UnitsWritten    int
	UnitNames       []string
}

// Open opens (creating if necessary) the SQLite ledger at path and
// ensures its schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open stamp store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate stamp store: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	ran_at           INTEGER NOT NULL,
	destination_dir  TEXT NOT NULL,
	tables_processed INTEGER NOT NULL,
	jobs_truncated   INTEGER NOT NULL,
	jobs_skipped     INTEGER NOT NULL,
	jobs_masked      INTEGER NOT NULL,
	units_written    INTEGER NOT NULL,
	unit_names_json  TEXT NOT NULL
);
`

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts one completed run. unixNow is supplied by the caller
// rather than read from the wall clock here.
func (s *Store) RecordRun(ctx context.Context, r Run, unixNow int64) (int64, error) {
	names, err := json.Marshal(r.UnitNames)
	if err != nil {
		return 0, fmt.Errorf("marshal unit names: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (ran_at, destination_dir, tables_processed, jobs_truncated, jobs_skipped, jobs_masked, units_written, unit_names_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		unixNow, r.DestinationDir, r.TablesProcessed, r.JobsTruncated, r.JobsSkipped, r.JobsMasked, r.UnitsWritten, string(names),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// LastRun returns the most recently recorded run, or ok=false if the
// ledger is empty.
func (s *Store) LastRun(ctx context.Context) (run Run, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, ran_at, destination_dir, tables_processed, jobs_truncated, jobs_skipped, jobs_masked, units_written, unit_names_json
		 FROM runs ORDER BY id DESC LIMIT 1`)

	var ranAt int64
	var namesJSON string
	switch scanErr := row.Scan(&run.ID, &ranAt, &run.DestinationDir, &run.TablesProcessed, &run.JobsTruncated, &run.JobsSkipped, &run.JobsMasked, &run.UnitsWritten, &namesJSON); {
	case scanErr == sql.ErrNoRows:
		return Run{}, false, nil
	case scanErr != nil:
		return Run{}, false, fmt.Errorf("query last run: %w", scanErr)
	}
	run.RanAt = time.Unix(ranAt, 0).UTC()
	if err := json.Unmarshal([]byte(namesJSON), &run.UnitNames); err != nil {
		return Run{}, false, fmt.Errorf("unmarshal unit names: %w", err)
	}
	return run, true, nil
}

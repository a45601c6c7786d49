package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Journal = (*SQLiteJournal)(nil)

const journalSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	ticker      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_run ON outcomes(run_id);
CREATE TABLE IF NOT EXISTS findings (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	ticker      TEXT NOT NULL,
	findings    TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS findings_run ON findings(run_id);
`

// SQLiteJournal implements Journal backed by a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath and
// migrates the journal schema.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Workers record outcomes concurrently; SQLite allows one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// StartRun inserts a new run and returns its ID.
func (j *SQLiteJournal) StartRun(ctx context.Context, kind string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)`,
		id, kind, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// RecordOutcome inserts the outcome of one ticker.
func (j *SQLiteJournal) RecordOutcome(ctx context.Context, runID, ticker string, outcome Outcome, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, ticker, outcome, detail, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		runID, ticker, string(outcome), detail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", ticker, err)
	}
	return nil
}

// RecordFindings inserts the health findings of one ticker as JSON.
func (j *SQLiteJournal) RecordFindings(ctx context.Context, runID, ticker string, findings map[string]any) error {
	data, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encoding findings for %s: %w", ticker, err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO findings (run_id, ticker, findings, recorded_at) VALUES (?, ?, ?, ?)`,
		runID, ticker, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording findings for %s: %w", ticker, err)
	}
	return nil
}

// Outcomes returns the recorded outcome per ticker for a run.
func (j *SQLiteJournal) Outcomes(ctx context.Context, runID string) (map[string]Outcome, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT ticker, outcome FROM outcomes WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Outcome)
	for rows.Next() {
		var ticker, outcome string
		if err := rows.Scan(&ticker, &outcome); err != nil {
			return nil, err
		}
		out[ticker] = Outcome(outcome)
	}
	return out, rows.Err()
}

// FindingsCount returns how many tickers had findings recorded in a run.
func (j *SQLiteJournal) FindingsCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// LatestRun returns the ID of the most recent run of kind, or ErrNoRecord
// when there is none.
func (j *SQLiteJournal) LatestRun(ctx context.Context, kind string) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE kind = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, kind).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no %s run: %w", kind, ErrNoRecord)
	}
	return id, err
}

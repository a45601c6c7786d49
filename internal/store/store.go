// Package store defines storage for ticker records: the JSON-per-ticker
// database, the blacklist file, the SQLite run journal and the Parquet
// export.
package store

import (
	"context"
	"errors"
	"time"

	"stockdb/internal/domain"
)

// ErrInvalidDatabase is returned when a directory cannot serve as a record
// database.
var ErrInvalidDatabase = errors.New("invalid database")

// ErrInvalidRecord is returned when a record cannot be stored because its
// bar interval is underivable or differs from the database's.
var ErrInvalidRecord = errors.New("invalid record")

// ErrNoRecord is returned when a ticker has no stored record.
var ErrNoRecord = errors.New("no such record")

// RecordStore persists and retrieves ticker records.
type RecordStore interface {
	// Tickers returns every stored ticker, sorted.
	Tickers() ([]string, error)

	// Exists reports whether ticker has a stored record.
	Exists(ticker string) bool

	// Load reads one record.
	Load(ticker string) (*domain.Record, error)

	// Merge folds rec into the stored record (or creates it) and persists
	// the result.
	Merge(rec *domain.Record) error

	// Delete removes the stored record.
	Delete(ticker string) error

	// Move relocates the stored record into dir.
	Move(ticker, dir string) error

	// Interval returns the bar interval of the database.
	Interval() time.Duration
}

// Outcome classifies how a ticker fared during an update run.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeTransientError Outcome = "transient_error"
	OutcomeBelowThreshold Outcome = "below_threshold"
)

// Journal records per-ticker outcomes and health findings of each run.
type Journal interface {
	// StartRun opens a new run of the given kind and returns its ID.
	StartRun(ctx context.Context, kind string) (string, error)

	// RecordOutcome stores the outcome of one ticker within a run.
	RecordOutcome(ctx context.Context, runID, ticker string, outcome Outcome, detail string) error

	// RecordFindings stores the health findings of one ticker within a run.
	RecordFindings(ctx context.Context, runID, ticker string, findings map[string]any) error
}

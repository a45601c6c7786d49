package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stockdb/internal/domain"
)

// Compile-time interface check.
var _ RecordStore = (*JSONStore)(nil)

const recordExt = ".json"

// JSONStore implements RecordStore as a flat directory holding one JSON
// document per ticker. The directory listing is the membership set.
type JSONStore struct {
	Dir      string
	interval time.Duration
}

// OpenJSONStore opens an existing database directory. The directory must
// hold at least one record, its first record must parse and its bar interval
// must be derivable; otherwise ErrInvalidDatabase is returned.
func OpenJSONStore(dir string) (*JSONStore, error) {
	s := &JSONStore{Dir: dir}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabase, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidDatabase, dir)
	}

	tickers, err := s.Tickers()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabase, err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: %s holds no records", ErrInvalidDatabase, dir)
	}

	first, err := s.Load(tickers[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabase, err)
	}
	iv, err := first.Interval()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabase, err)
	}
	s.interval = iv
	return s, nil
}

// CreateJSONStore creates dir if needed and returns a store for it without
// validating its contents. It is used to seed a new database.
func CreateJSONStore(dir string, interval time.Duration) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}
	return &JSONStore{Dir: dir, interval: interval}, nil
}

// Interval returns the bar interval derived when the store was opened.
func (s *JSONStore) Interval() time.Duration { return s.interval }

// Path returns the document path for ticker.
func (s *JSONStore) Path(ticker string) string {
	return filepath.Join(s.Dir, strings.ToUpper(ticker)+recordExt)
}

// Tickers lists every ticker with a document in the directory, sorted.
func (s *JSONStore) Tickers() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		tickers = append(tickers, strings.ToUpper(strings.TrimSuffix(name, recordExt)))
	}
	sort.Strings(tickers)
	return tickers, nil
}

// Exists reports whether ticker has a document.
func (s *JSONStore) Exists(ticker string) bool {
	_, err := os.Stat(s.Path(ticker))
	return err == nil
}

// Load reads and decodes the document for ticker.
func (s *JSONStore) Load(ticker string) (*domain.Record, error) {
	data, err := os.ReadFile(s.Path(ticker))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", ticker, ErrNoRecord)
		}
		return nil, err
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	if rec.Ticker == "" {
		rec.Ticker = strings.ToUpper(ticker)
	}
	return rec, nil
}

// LoadAll decodes every record in the directory.
func (s *JSONStore) LoadAll(ctx context.Context) ([]*domain.Record, error) {
	tickers, err := s.Tickers()
	if err != nil {
		return nil, err
	}
	recs := make([]*domain.Record, 0, len(tickers))
	for _, t := range tickers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rec, err := s.Load(t)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Save writes rec, replacing any stored document. The write goes through a
// temporary file so readers never see a partial document. A record whose
// interval cannot be derived, or differs from the database interval, is
// refused with ErrInvalidRecord.
func (s *JSONStore) Save(rec *domain.Record) error {
	iv, err := rec.Interval()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if s.interval != 0 && iv != s.interval {
		return fmt.Errorf("%w: %s has %s bars, database holds %s", ErrInvalidRecord, rec.Ticker, iv, s.interval)
	}

	data, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rec.Ticker, err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+rec.Ticker+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", rec.Ticker, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path(rec.Ticker))
}

// Merge folds rec into the stored record for the same ticker, creating it
// when absent.
func (s *JSONStore) Merge(rec *domain.Record) error {
	existing, err := s.Load(rec.Ticker)
	switch {
	case errors.Is(err, ErrNoRecord):
		return s.Save(rec)
	case err != nil:
		return err
	}
	return s.Save(existing.Merge(rec))
}

// Delete removes the document for ticker. Deleting an absent record is not
// an error.
func (s *JSONStore) Delete(ticker string) error {
	err := os.Remove(s.Path(ticker))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Move relocates the document for ticker into dir, creating dir if needed.
// It returns ErrNoRecord when there is nothing to move.
func (s *JSONStore) Move(ticker, dir string) error {
	src := s.Path(ticker)
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", ticker, ErrNoRecord)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return os.Rename(src, filepath.Join(dir, filepath.Base(src)))
}

package store

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"stockdb/internal/domain"
)

// ParquetExporter writes records as long-format bar files for analysis
// tools that cannot read the wide JSON tables.
type ParquetExporter struct {
	DataDir string
}

// NewParquetExporter creates an exporter rooted at the given directory.
func NewParquetExporter(dataDir string) *ParquetExporter {
	return &ParquetExporter{DataDir: dataDir}
}

// BarRecord is the Parquet schema for one intraday bar.
type BarRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, UTC wall clock
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteRecord flattens rec into bars and merges them into the ticker's file
// at <DataDir>/<TICKER>.parquet. Buckets where every field is missing are
// skipped. It returns the number of bars in the file.
func (e *ParquetExporter) WriteRecord(rec *domain.Record) (int, error) {
	bars := flattenRecord(rec)
	path := e.barPath(rec.Ticker)

	existing, _ := readParquetFile[BarRecord](path)
	merged := mergeBarRecords(existing, bars)

	if err := writeParquetFile(path, merged); err != nil {
		return 0, fmt.Errorf("writing bars for %s: %w", rec.Ticker, err)
	}
	return len(merged), nil
}

// ReadBars reads every exported bar for ticker.
func (e *ParquetExporter) ReadBars(ticker string) ([]BarRecord, error) {
	return readParquetFile[BarRecord](e.barPath(ticker))
}

// barPath returns the filesystem path for a ticker's bar file.
func (e *ParquetExporter) barPath(ticker string) string {
	return filepath.Join(e.DataDir, strings.ToUpper(ticker)+".parquet")
}

func flattenRecord(rec *domain.Record) []BarRecord {
	closes := rec.Table(domain.FieldClose)
	if closes.Empty() {
		return nil
	}

	value := func(f domain.Field, i, j int) float64 {
		t := rec.Table(f)
		if t == nil || i >= len(t.Values) || j >= len(t.Values[i]) {
			return math.NaN()
		}
		return t.Values[i][j]
	}

	var bars []BarRecord
	for i, d := range closes.Dates {
		for j, tm := range closes.Times {
			b := BarRecord{
				Ticker:    rec.Ticker,
				Timestamp: d.Add(tm).UnixMilli(),
				Open:      value(domain.FieldOpen, i, j),
				High:      value(domain.FieldHigh, i, j),
				Low:       value(domain.FieldLow, i, j),
				Close:     value(domain.FieldClose, i, j),
				Volume:    value(domain.FieldVolume, i, j),
			}
			if math.IsNaN(b.Open) && math.IsNaN(b.High) && math.IsNaN(b.Low) &&
				math.IsNaN(b.Close) && math.IsNaN(b.Volume) {
				continue
			}
			bars = append(bars, b)
		}
	}
	return bars
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bars by timestamp, preferring records already
// on disk, and sorts the result.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}
	for _, r := range existing {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// Package legacy converts between the JSON-per-ticker database and the
// older layout: one folder per ticker holding a CSV per intraday field and
// per historical series, plus a shared database.csv index.
package legacy

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"stockdb/internal/domain"
	"stockdb/internal/store"
)

// IndexFile is the shared index name inside a legacy directory.
const IndexFile = "database.csv"

// IndexRow is one line of database.csv.
type IndexRow struct {
	Ticker    string `csv:"ticker"`
	Market    string `csv:"market"`
	Sector    string `csv:"sector"`
	Industry  string `csv:"industry"`
	FirstDate string `csv:"first_date"`
	LastDate  string `csv:"last_date"`
}

// Source is the read side of a record store.
type Source interface {
	Tickers() ([]string, error)
	Load(ticker string) (*domain.Record, error)
}

// Sink persists converted records.
type Sink interface {
	Save(rec *domain.Record) error
}

var (
	_ Source = (*store.JSONStore)(nil)
	_ Sink   = (*store.JSONStore)(nil)
)

// ToCSV writes every record in src into the legacy layout under dir and
// returns the number of tickers written.
func ToCSV(ctx context.Context, src Source, dir string) (int, error) {
	tickers, err := src.Tickers()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	index := make([]*IndexRow, 0, len(tickers))
	for _, t := range tickers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rec, err := src.Load(t)
		if err != nil {
			return 0, err
		}
		if err := writeTicker(filepath.Join(dir, rec.Ticker), rec); err != nil {
			return 0, fmt.Errorf("writing %s: %w", rec.Ticker, err)
		}

		closes := rec.Table(domain.FieldClose)
		row := &IndexRow{
			Ticker:   rec.Ticker,
			Market:   string(rec.Market),
			Sector:   rec.Sector,
			Industry: rec.Industry,
		}
		if !closes.Empty() {
			row.FirstDate = closes.FirstDate().Format(domain.DateLayout)
			row.LastDate = closes.LastDate().Format(domain.DateLayout)
		}
		index = append(index, row)
	}

	f, err := os.Create(filepath.Join(dir, IndexFile))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&index, f); err != nil {
		return 0, fmt.Errorf("writing index: %w", err)
	}
	return len(index), nil
}

// FromCSV reads the legacy layout under dir, listed by its index, and saves
// every record into dst. It returns the number of tickers converted.
func FromCSV(ctx context.Context, dir string, dst Sink) (int, error) {
	f, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return 0, fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	var index []*IndexRow
	if err := gocsv.UnmarshalFile(f, &index); err != nil {
		return 0, fmt.Errorf("reading index: %w", err)
	}

	for _, row := range index {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rec, err := readTicker(filepath.Join(dir, row.Ticker), row)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", row.Ticker, err)
		}
		if err := dst.Save(rec); err != nil {
			return 0, err
		}
	}
	return len(index), nil
}

func writeTicker(dir string, rec *domain.Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, field := range domain.Fields {
		t := rec.Table(field)
		if t == nil {
			continue
		}
		header := make([]string, 0, t.Cols()+1)
		header = append(header, "date")
		for _, tod := range t.Times {
			header = append(header, domain.FormatClock(tod))
		}
		rows := [][]string{header}
		for i, d := range t.Dates {
			row := make([]string, 0, t.Cols()+1)
			row = append(row, d.Format(domain.DateLayout))
			for _, v := range t.Values[i] {
				row = append(row, formatValue(v))
			}
			rows = append(rows, row)
		}
		if err := writeRows(filepath.Join(dir, string(field)+".csv"), rows); err != nil {
			return err
		}
	}
	for _, h := range domain.HistoricalFields {
		s := rec.Historical[h]
		if s.Len() == 0 {
			continue
		}
		rows := [][]string{{"date", h}}
		for i, d := range s.Dates {
			rows = append(rows, []string{d.Format(domain.DateLayout), formatValue(s.Values[i])})
		}
		if err := writeRows(filepath.Join(dir, h+".csv"), rows); err != nil {
			return err
		}
	}
	return nil
}

func readTicker(dir string, row *IndexRow) (*domain.Record, error) {
	market, err := domain.NormalizeMarket(row.Market)
	if err != nil {
		return nil, err
	}
	rec := &domain.Record{
		Ticker:     strings.ToUpper(row.Ticker),
		Market:     market,
		Sector:     row.Sector,
		Industry:   row.Industry,
		Intraday:   make(map[domain.Field]*domain.Table, len(domain.Fields)),
		Historical: make(map[string]*domain.Series, len(domain.HistoricalFields)),
	}

	for _, field := range domain.Fields {
		rows, err := readRows(filepath.Join(dir, string(field)+".csv"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		t, err := parseTable(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		rec.Intraday[field] = t
	}

	for _, h := range domain.HistoricalFields {
		rows, err := readRows(filepath.Join(dir, h+".csv"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s := &domain.Series{}
		for _, r := range rows[1:] {
			if len(r) < 2 {
				continue
			}
			d, err := domain.ParseDate(r[0])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", h, err)
			}
			v, err := parseValue(r[1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", h, err)
			}
			s.Dates = append(s.Dates, d)
			s.Values = append(s.Values, v)
		}
		if s.Len() > 0 {
			rec.Historical[h] = s
		}
	}
	return rec, nil
}

func parseTable(rows [][]string) (*domain.Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	times := make([]time.Duration, 0, len(rows[0])-1)
	for _, h := range rows[0][1:] {
		tod, err := domain.ParseClock(h)
		if err != nil {
			return nil, err
		}
		times = append(times, tod)
	}
	dates := make([]time.Time, 0, len(rows)-1)
	for _, r := range rows[1:] {
		d, err := domain.ParseDate(r[0])
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}

	t := domain.NewTable(dates, times)
	for i, r := range rows[1:] {
		for j := 0; j < len(times) && j+1 < len(r); j++ {
			v, err := parseValue(r[j+1])
			if err != nil {
				return nil, err
			}
			t.Values[i][j] = v
		}
	}
	return t, nil
}

func writeRows(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

// formatValue writes NaN as an empty cell.
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

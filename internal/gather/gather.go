// Package gather defines the third-party data sources a database update
// pulls from.
package gather

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"stockdb/internal/domain"
)

// ErrNotFound is returned by a source that has no data for a ticker. Any
// other source error is treated as transient.
var ErrNotFound = errors.New("ticker not found")

// PriceSource fetches intraday price tables.
type PriceSource interface {
	// Intraday returns the last days of bars at the given interval.
	Intraday(ctx context.Context, ticker string, interval time.Duration, days int) (*domain.Intraday, error)
}

// FundamentalsSource fetches sector, industry and stock-activity figures.
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, ticker string) (*domain.Fundamentals, error)
}

// Bar is one intraday observation as reported by a source. Time carries the
// exchange-local wall clock.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// BuildIntraday pivots bars into five aligned tables indexed by every date
// and every time of day seen. Slots with no bar are NaN.
func BuildIntraday(exchange string, bars []Bar) *domain.Intraday {
	dateSet := make(map[time.Time]struct{})
	timeSet := make(map[time.Duration]struct{})
	for _, b := range bars {
		d, tod := splitWallClock(b.Time)
		dateSet[d] = struct{}{}
		timeSet[tod] = struct{}{}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	times := make([]time.Duration, 0, len(timeSet))
	for tod := range timeSet {
		times = append(times, tod)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	row := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		row[d] = i
	}
	col := make(map[time.Duration]int, len(times))
	for j, tod := range times {
		col[tod] = j
	}

	in := &domain.Intraday{Exchange: exchange, Tables: make(map[domain.Field]*domain.Table, len(domain.Fields))}
	for _, f := range domain.Fields {
		in.Tables[f] = domain.NewTable(dates, times)
	}
	for _, b := range bars {
		d, tod := splitWallClock(b.Time)
		i, j := row[d], col[tod]
		in.Tables[domain.FieldOpen].Values[i][j] = b.Open
		in.Tables[domain.FieldHigh].Values[i][j] = b.High
		in.Tables[domain.FieldLow].Values[i][j] = b.Low
		in.Tables[domain.FieldClose].Values[i][j] = b.Close
		in.Tables[domain.FieldVolume].Values[i][j] = b.Volume
	}
	return in
}

func splitWallClock(t time.Time) (time.Time, time.Duration) {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	tod := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	return d, tod
}

// LoadTickerList reads tickers from the first column of a CSV or plain text
// file. A leading "symbol" or "ticker" header is skipped, as are blank lines
// and lines starting with '#'. Tickers are uppercased and deduplicated in
// file order.
func LoadTickerList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ticker list %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	r.TrimLeadingSpace = true

	var (
		tickers []string
		seen    = make(map[string]struct{})
		first   = true
	)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ticker list %s: %w", path, err)
		}
		if len(row) == 0 {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[0]))
		if first {
			first = false
			if sym == "SYMBOL" || sym == "TICKER" {
				continue
			}
		}
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		tickers = append(tickers, sym)
	}
	return tickers, nil
}

package legacy

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/gocarina/gocsv"

	"stockdb/internal/domain"
	"stockdb/internal/store"
)

func sampleRecord(t *testing.T, ticker, exchange string) *domain.Record {
	t.Helper()
	dates := []time.Time{
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	times := []time.Duration{9*time.Hour + 30*time.Minute, 9*time.Hour + 35*time.Minute}
	in := &domain.Intraday{Exchange: exchange, Tables: map[domain.Field]*domain.Table{}}
	for k, f := range domain.Fields {
		tbl := domain.NewTable(dates, times)
		for i := range tbl.Values {
			for j := range tbl.Values[i] {
				tbl.Values[i][j] = float64(k) + float64(i)*0.25 + float64(j)*0.125
			}
		}
		in.Tables[f] = tbl
	}
	in.Tables[domain.FieldVolume].Values[1][0] = math.NaN()

	rec, err := domain.NewRecord(ticker, in, &domain.Fundamentals{
		Sector:   "Retail-Wholesale",
		Industry: "Internet - Commerce",
		AsOf:     dates[1],
		Activity: map[string]float64{domain.HistMarketCap: 9.1e11, domain.HistBeta: 1.3},
	})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return rec
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := store.CreateJSONStore(t.TempDir(), 5*time.Minute)
	if err != nil {
		t.Fatalf("CreateJSONStore: %v", err)
	}
	amzn := sampleRecord(t, "AMZN", "NASDAQ")
	for _, rec := range []*domain.Record{amzn, sampleRecord(t, "KO", "NYSE")} {
		if err := src.Save(rec); err != nil {
			t.Fatalf("Save(%s): %v", rec.Ticker, err)
		}
	}

	legacyDir := t.TempDir()
	n, err := ToCSV(ctx, src, legacyDir)
	if err != nil {
		t.Fatalf("ToCSV: %v", err)
	}
	if n != 2 {
		t.Errorf("ToCSV wrote %d tickers, want 2", n)
	}
	for _, name := range []string{"close.csv", "market_cap.csv"} {
		if _, err := os.Stat(filepath.Join(legacyDir, "AMZN", name)); err != nil {
			t.Errorf("AMZN/%s: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(legacyDir, IndexFile))
	if err != nil {
		t.Fatal(err)
	}
	var index []*IndexRow
	err = gocsv.UnmarshalFile(f, &index)
	f.Close()
	if err != nil {
		t.Fatalf("reading index: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("index has %d rows, want 2", len(index))
	}
	wantRow := IndexRow{
		Ticker: "AMZN", Market: "^IXIC",
		Sector: "Retail-Wholesale", Industry: "Internet - Commerce",
		FirstDate: "2020-01-02", LastDate: "2020-01-03",
	}
	if *index[0] != wantRow {
		t.Errorf("index[0] = %+v, want %+v", *index[0], wantRow)
	}

	dst, err := store.CreateJSONStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("CreateJSONStore: %v", err)
	}
	n, err = FromCSV(ctx, legacyDir, dst)
	if err != nil {
		t.Fatalf("FromCSV: %v", err)
	}
	if n != 2 {
		t.Errorf("FromCSV read %d tickers, want 2", n)
	}

	got, err := dst.Load("AMZN")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Market != amzn.Market || got.Sector != amzn.Sector {
		t.Errorf("got market %q sector %q, want %q %q", got.Market, got.Sector, amzn.Market, amzn.Sector)
	}

	for _, field := range domain.Fields {
		want, have := amzn.Table(field), got.Table(field)
		if !slices.EqualFunc(want.Dates, have.Dates, time.Time.Equal) {
			t.Fatalf("%s dates = %v, want %v", field, have.Dates, want.Dates)
		}
		if !slices.Equal(want.Times, have.Times) {
			t.Fatalf("%s times = %v, want %v", field, have.Times, want.Times)
		}
		for i := range want.Values {
			for j := range want.Values[i] {
				w, h := want.Values[i][j], have.Values[i][j]
				if math.IsNaN(w) {
					if !math.IsNaN(h) {
						t.Errorf("%s[%d][%d] = %v, want NaN", field, i, j, h)
					}
					continue
				}
				if w != h {
					t.Errorf("%s[%d][%d] = %v, want %v", field, i, j, h, w)
				}
			}
		}
	}

	iv, err := got.Interval()
	if err != nil {
		t.Fatalf("Interval: %v", err)
	}
	if iv != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", iv)
	}

	v, ok := got.Historical[domain.HistMarketCap].At(time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC))
	if !ok || v != 9.1e11 {
		t.Errorf("market cap = %v, %v; want 9.1e11", v, ok)
	}
	if d := got.Historical[domain.HistDividend].Values[0]; !math.IsNaN(d) {
		t.Errorf("dividend = %v, want NaN", d)
	}
}

func TestFromCSVMissingIndex(t *testing.T) {
	dst, err := store.CreateJSONStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("CreateJSONStore: %v", err)
	}
	if _, err := FromCSV(context.Background(), t.TempDir(), dst); err == nil {
		t.Error("FromCSV without an index succeeded")
	}
}

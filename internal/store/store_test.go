package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockdb/internal/domain"
)

// makeRecord builds a record with one row per date and 15-minute columns
// from 09:30 to 10:00. The 09:45 close on the first date is missing.
func makeRecord(ticker string, dates ...string) *domain.Record {
	times := []time.Duration{
		9*time.Hour + 30*time.Minute,
		9*time.Hour + 45*time.Minute,
		10 * time.Hour,
	}
	ds := make([]time.Time, len(dates))
	for i, s := range dates {
		d, err := domain.ParseDate(s)
		if err != nil {
			panic(err)
		}
		ds[i] = d
	}

	in := &domain.Intraday{Exchange: "NASDAQ", Tables: map[domain.Field]*domain.Table{}}
	for k, f := range domain.Fields {
		t := domain.NewTable(ds, times)
		for i := range t.Values {
			for j := range t.Values[i] {
				t.Values[i][j] = float64(100*k + 10*i + j)
			}
		}
		in.Tables[f] = t
	}
	in.Tables[domain.FieldClose].Values[0][1] = math.NaN()

	rec, err := domain.NewRecord(ticker, in, &domain.Fundamentals{
		Sector:   "Computer and Technology",
		Industry: "Semiconductor - General",
		AsOf:     ds[0],
		Activity: map[string]float64{domain.HistMarketCap: 1.5e11, domain.HistBeta: 1.2},
	})
	if err != nil {
		panic(err)
	}
	return rec
}

func TestJSONStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := CreateJSONStore(dir, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	rec := makeRecord("NVDA", "2020-01-02", "2020-01-03")
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("nvda")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Ticker != "NVDA" || got.Market != domain.MarketNASDAQ {
		t.Errorf("info = %q/%q, want NVDA/^IXIC", got.Ticker, got.Market)
	}
	if got.Sector != rec.Sector || got.Industry != rec.Industry {
		t.Errorf("sector/industry = %q/%q", got.Sector, got.Industry)
	}

	for _, f := range domain.Fields {
		want, have := rec.Table(f), got.Table(f)
		if have.Rows() != want.Rows() || have.Cols() != want.Cols() {
			t.Fatalf("%s shape = %dx%d, want %dx%d", f, have.Rows(), have.Cols(), want.Rows(), want.Cols())
		}
		for i := range want.Dates {
			if !have.Dates[i].Equal(want.Dates[i]) {
				t.Errorf("%s date %d = %v, want %v", f, i, have.Dates[i], want.Dates[i])
			}
			for j := range want.Times {
				w, h := want.Values[i][j], have.Values[i][j]
				if math.IsNaN(w) != math.IsNaN(h) || (!math.IsNaN(w) && w != h) {
					t.Errorf("%s[%d][%d] = %v, want %v", f, i, j, h, w)
				}
			}
		}
		for j := range want.Times {
			if have.Times[j] != want.Times[j] {
				t.Errorf("%s column %d = %v, want %v", f, j, have.Times[j], want.Times[j])
			}
		}
	}

	iv, err := got.Interval()
	if err != nil {
		t.Fatal(err)
	}
	if iv != 15*time.Minute {
		t.Errorf("Interval() = %v, want 15m", iv)
	}
	if v, ok := got.Historical[domain.HistMarketCap].At(rec.Dates()[0]); !ok || v != 1.5e11 {
		t.Errorf("market_cap = %v (ok=%v), want 1.5e11", v, ok)
	}
	if !math.IsNaN(got.Historical[domain.HistDividend].Values[0]) {
		t.Error("missing dividend should round-trip as NaN")
	}
}

func TestOpenJSONStoreValidation(t *testing.T) {
	if _, err := OpenJSONStore(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("missing dir: err = %v, want ErrInvalidDatabase", err)
	}

	empty := t.TempDir()
	if _, err := OpenJSONStore(empty); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("empty dir: err = %v, want ErrInvalidDatabase", err)
	}

	garbage := t.TempDir()
	if err := os.WriteFile(filepath.Join(garbage, "AAPL.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenJSONStore(garbage); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("unparseable record: err = %v, want ErrInvalidDatabase", err)
	}

	good := t.TempDir()
	s, _ := CreateJSONStore(good, 0)
	if err := s.Save(makeRecord("AMD", "2020-01-02")); err != nil {
		t.Fatal(err)
	}
	opened, err := OpenJSONStore(good)
	if err != nil {
		t.Fatalf("OpenJSONStore: %v", err)
	}
	if opened.Interval() != 15*time.Minute {
		t.Errorf("Interval() = %v, want 15m", opened.Interval())
	}
}

func TestJSONStoreMergeNoDuplicateDates(t *testing.T) {
	s, _ := CreateJSONStore(t.TempDir(), 15*time.Minute)

	if err := s.Merge(makeRecord("TSLA", "2020-01-02", "2020-01-03")); err != nil {
		t.Fatal(err)
	}
	if err := s.Merge(makeRecord("TSLA", "2020-01-03", "2020-01-06")); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("TSLA")
	if err != nil {
		t.Fatal(err)
	}
	dates := got.Dates()
	if len(dates) != 3 {
		t.Fatalf("merged dates = %d, want 3", len(dates))
	}
	seen := make(map[time.Time]bool)
	for _, d := range dates {
		if seen[d] {
			t.Errorf("duplicate date %v", d)
		}
		seen[d] = true
	}
}

func TestJSONStoreSaveRefusesUnusableRecords(t *testing.T) {
	dir := t.TempDir()
	s, _ := CreateJSONStore(dir, 15*time.Minute)

	empty := makeRecord("A", "2020-01-02")
	for _, f := range domain.Fields {
		empty.Intraday[f] = domain.NewTable(nil, nil)
	}
	if err := s.Save(empty); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Save(no columns) = %v, want ErrInvalidRecord", err)
	}

	hourly := makeRecord("B", "2020-01-02")
	for _, f := range domain.Fields {
		tbl := hourly.Intraday[f]
		tbl.Times = []time.Duration{10 * time.Hour, 11 * time.Hour, 12 * time.Hour}
	}
	if err := s.Merge(hourly); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Merge(hourly) = %v, want ErrInvalidRecord", err)
	}
	if s.Exists("A") || s.Exists("B") {
		t.Fatal("refused records were written")
	}

	if err := s.Save(makeRecord("C", "2020-01-02")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	opened, err := OpenJSONStore(dir)
	if err != nil {
		t.Fatalf("OpenJSONStore after refused saves: %v", err)
	}
	if opened.Interval() != 15*time.Minute {
		t.Errorf("Interval() = %v, want 15m", opened.Interval())
	}
}

func TestJSONStoreDeleteMove(t *testing.T) {
	dir := t.TempDir()
	s, _ := CreateJSONStore(dir, 15*time.Minute)
	for _, tk := range []string{"AAPL", "AMD"} {
		if err := s.Save(makeRecord(tk, "2020-01-02")); err != nil {
			t.Fatal(err)
		}
	}

	tickers, err := s.Tickers()
	if err != nil {
		t.Fatal(err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "AMD" {
		t.Errorf("Tickers() = %v, want [AAPL AMD]", tickers)
	}

	if err := s.Delete("AAPL"); err != nil {
		t.Fatal(err)
	}
	if s.Exists("AAPL") {
		t.Error("AAPL should not exist after Delete")
	}
	if err := s.Delete("AAPL"); err != nil {
		t.Errorf("deleting an absent record returned %v", err)
	}

	dest := filepath.Join(t.TempDir(), "incomplete")
	if err := s.Move("AMD", dest); err != nil {
		t.Fatal(err)
	}
	if s.Exists("AMD") {
		t.Error("AMD should not exist at source after Move")
	}
	if _, err := os.Stat(filepath.Join(dest, "AMD.json")); err != nil {
		t.Errorf("AMD should exist at destination: %v", err)
	}
	if err := s.Move("AMD", dest); !errors.Is(err, ErrNoRecord) {
		t.Errorf("moving an absent record: err = %v, want ErrNoRecord", err)
	}
}

func TestBlacklistAddReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")

	b, err := OpenBlacklist(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add("aaaa", "BBBB", "CCCC", "BBBB"); err != nil {
		t.Fatal(err)
	}
	b.Close()

	b2, err := OpenBlacklist(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b2.Close()

	for _, tk := range []string{"AAAA", "BBBB", "CCCC"} {
		if !b2.Contains(tk) {
			t.Errorf("expected %q to be blacklisted after reload", tk)
		}
	}
	if b2.Contains("DDDD") {
		t.Error("DDDD should not be blacklisted")
	}
	if got := len(b2.List()); got != 3 {
		t.Errorf("List() has %d entries, want 3", got)
	}
}

func TestBlacklistReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")

	b, err := OpenBlacklist(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add("AAAA"); err != nil {
		t.Fatal(err)
	}
	if err := b.Reset(); err != nil {
		t.Fatal(err)
	}
	if b.Contains("AAAA") {
		t.Error("AAAA should not be blacklisted after reset")
	}
	b.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) > 0 {
		t.Error("blacklist file should be empty after reset")
	}
}

func TestSQLiteJournal(t *testing.T) {
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteJournal returned error: %v", err)
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()

	ctx := context.Background()
	run, err := j.StartRun(ctx, "update")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.RecordOutcome(ctx, run, "NVDA", OutcomeSuccess, ""); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordOutcome(ctx, run, "ZZZZ", OutcomeNotFound, "price source"); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordFindings(ctx, run, "NVDA", map[string]any{"stale": "2020-01-03"}); err != nil {
		t.Fatal(err)
	}

	outcomes, err := j.Outcomes(ctx, run)
	if err != nil {
		t.Fatal(err)
	}
	if outcomes["NVDA"] != OutcomeSuccess || outcomes["ZZZZ"] != OutcomeNotFound {
		t.Errorf("Outcomes = %v", outcomes)
	}
	n, err := j.FindingsCount(ctx, run)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("FindingsCount = %d, want 1", n)
	}

	latest, err := j.LatestRun(ctx, "update")
	if err != nil {
		t.Fatal(err)
	}
	if latest != run {
		t.Errorf("LatestRun = %q, want %q", latest, run)
	}
	if _, err := j.LatestRun(ctx, "health"); !errors.Is(err, ErrNoRecord) {
		t.Errorf("LatestRun(health) err = %v, want ErrNoRecord", err)
	}
}

func TestParquetExporterMerge(t *testing.T) {
	dir := t.TempDir()
	e := NewParquetExporter(dir)

	n, err := e.WriteRecord(makeRecord("MSFT", "2024-03-01"))
	if err != nil {
		t.Fatalf("WriteRecord (first): %v", err)
	}
	if n != 3 {
		t.Errorf("first export wrote %d bars, want 3", n)
	}

	n, err = e.WriteRecord(makeRecord("MSFT", "2024-03-01", "2024-03-04"))
	if err != nil {
		t.Fatalf("WriteRecord (second): %v", err)
	}
	if n != 6 {
		t.Errorf("merged export holds %d bars, want 6", n)
	}

	bars, err := e.ReadBars("MSFT")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 6 {
		t.Fatalf("ReadBars returned %d bars, want 6", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp <= bars[i-1].Timestamp {
			t.Fatal("bars should be sorted by timestamp without duplicates")
		}
	}
	if !math.IsNaN(bars[1].Close) {
		t.Errorf("missing close should export as NaN, got %v", bars[1].Close)
	}
}

func TestParquetExporterPath(t *testing.T) {
	e := NewParquetExporter("/data")
	want := filepath.Join("/data", "AAPL.parquet")
	if got := e.barPath("aapl"); got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

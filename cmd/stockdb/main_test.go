package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stockdb/internal/domain"
	"stockdb/internal/store"
)

// setup creates a one-ticker database and a config file pointing at it.
func setup(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	for _, k := range []string{"STOCKDB_DB_PATH", "STOCKDB_PRICE_SOURCE", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	dir = t.TempDir()

	s, err := store.CreateJSONStore(filepath.Join(dir, "stocks"), 15*time.Minute)
	if err != nil {
		t.Fatalf("CreateJSONStore: %v", err)
	}

	d, err := domain.ParseDate("2024-03-28")
	if err != nil {
		t.Fatal(err)
	}
	times := []time.Duration{9*time.Hour + 30*time.Minute, 9*time.Hour + 45*time.Minute}
	in := &domain.Intraday{Exchange: "NASDAQ", Tables: map[domain.Field]*domain.Table{}}
	for _, f := range domain.Fields {
		tb := domain.NewTable([]time.Time{d}, times)
		tb.Values[0][0], tb.Values[0][1] = 10, 11
		in.Tables[f] = tb
	}
	rec, err := domain.NewRecord("AAPL", in, &domain.Fundamentals{
		Sector: "Computer and Technology", Industry: "Computer - Mini computers", AsOf: d,
		Activity: map[string]float64{domain.HistMarketCap: 3e12},
	})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfgPath = filepath.Join(dir, "stockdb.yaml")
	cfg := "database:\n" +
		"  path: " + filepath.Join(dir, "stocks") + "\n" +
		"  journal_path: " + filepath.Join(dir, "journal.db") + "\n" +
		"  blacklist_file: " + filepath.Join(dir, "blacklist.txt") + "\n" +
		"  parquet_dir: " + filepath.Join(dir, "parquet") + "\n" +
		"  legacy_dir: " + filepath.Join(dir, "legacy") + "\n" +
		"health:\n" +
		"  stale_days: 0\n" +
		"  report_path: " + filepath.Join(dir, "health.json") + "\n" +
		"logging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, cfgPath
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("stockdb %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func wantOutput(t *testing.T, out, substr string) {
	t.Helper()
	if !strings.Contains(out, substr) {
		t.Errorf("output %q does not contain %q", out, substr)
	}
}

func wantFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file: %v", err)
	}
}

func TestExportCommand(t *testing.T) {
	dir, cfg := setup(t)

	out := execute(t, "--config", cfg, "export")
	wantOutput(t, out, "exported 1 tickers (2 bars)")

	bars, err := store.NewParquetExporter(filepath.Join(dir, "parquet")).ReadBars("AAPL")
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("read %d bars, want 2", len(bars))
	}
}

func TestConvertToCSVCommand(t *testing.T) {
	dir, cfg := setup(t)

	out := execute(t, "--config", cfg, "convert", "to-csv")
	wantOutput(t, out, "wrote 1 tickers")
	wantFile(t, filepath.Join(dir, "legacy", "database.csv"))
}

func TestHealthCommandWritesReport(t *testing.T) {
	dir, cfg := setup(t)

	out := execute(t, "--config", cfg, "health")
	wantOutput(t, out, "checked 1 tickers")
	wantFile(t, filepath.Join(dir, "health.json"))
}

func TestBlacklistCommands(t *testing.T) {
	dir, cfg := setup(t)
	path := filepath.Join(dir, "blacklist.txt")
	if err := os.WriteFile(path, []byte("ZZZ\nbad\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "--config", cfg, "blacklist", "list")
	if out != "BAD\nZZZ\n" {
		t.Errorf("list = %q, want BAD and ZZZ", out)
	}

	out = execute(t, "--config", cfg, "blacklist", "check", "zzz", "AAPL")
	wantOutput(t, out, "ZZZ blacklisted")
	wantOutput(t, out, "AAPL ok")

	out = execute(t, "--config", cfg, "blacklist", "reset")
	wantOutput(t, out, "removed 2 tickers")

	if out := execute(t, "--config", cfg, "blacklist", "list"); out != "" {
		t.Errorf("list after reset = %q, want empty", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("blacklist file holds %q after reset", data)
	}
}

func TestDownloadWithoutTickersFails(t *testing.T) {
	_, cfg := setup(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "download"})
	if err := root.Execute(); err == nil {
		t.Error("download without tickers succeeded")
	}
}

// Package report runs health checks across a whole database and collects
// the unhealthy tickers.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stockdb/internal/domain"
	"stockdb/internal/health"
	"stockdb/internal/store"
)

// Source is the read side of a record store.
type Source interface {
	Tickers() ([]string, error)
	Load(ticker string) (*domain.Record, error)
}

// Report maps ticker to findings. Healthy tickers are absent.
type Report struct {
	Generated time.Time                  `json:"generated"`
	Checked   int                        `json:"checked"`
	Tickers   map[string]health.Findings `json:"tickers"`
}

// Options tunes Build.
type Options struct {
	// Workers bounds concurrent loads and checks. Zero means NumCPU.
	Workers int
	// Journal, when set, receives the findings of every unhealthy ticker.
	Journal store.Journal
	Logger  *slog.Logger
}

// Build loads every record in src and runs checks on it concurrently.
// Records that fail to load are reported under the "load_error" finding.
func Build(ctx context.Context, src Source, checks []health.Check, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "report")

	tickers, err := src.Tickers()
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var runID string
	if opts.Journal != nil {
		if runID, err = opts.Journal.StartRun(ctx, "health"); err != nil {
			log.Error("starting journal run", "error", err)
		}
	}

	rep := &Report{
		Generated: time.Now().UTC(),
		Checked:   len(tickers),
		Tickers:   make(map[string]health.Findings),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tickers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var f health.Findings
			rec, err := src.Load(t)
			if err != nil {
				f = health.Findings{"load_error": err.Error()}
			} else {
				f = health.Run(rec, checks...)
			}
			if len(f) == 0 {
				return nil
			}

			mu.Lock()
			rep.Tickers[t] = f
			mu.Unlock()

			if opts.Journal != nil && runID != "" {
				if err := opts.Journal.RecordFindings(gctx, runID, t, f); err != nil {
					log.Error("journal write failed", "ticker", t, "error", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("health report built", "checked", rep.Checked, "unhealthy", len(rep.Tickers))
	return rep, nil
}

// Unhealthy returns the flagged tickers, sorted.
func (r *Report) Unhealthy() []string {
	out := make([]string, 0, len(r.Tickers))
	for t := range r.Tickers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Write serializes the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(r)
}

// WriteFile writes the report to path, creating parent directories.
func (r *Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}

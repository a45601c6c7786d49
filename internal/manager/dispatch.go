package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockdb/internal/domain"
	"stockdb/internal/gather"
	"stockdb/internal/store"
)

// Outcome classifies one ticker task.
type Outcome = store.Outcome

const (
	Success        = store.OutcomeSuccess
	NotFound       = store.OutcomeNotFound
	TransientError = store.OutcomeTransientError
	BelowThreshold = store.OutcomeBelowThreshold
)

// TaskResult is what a worker reports for one ticker.
type TaskResult struct {
	Ticker  string
	Outcome Outcome
	// Source names the fetch that failed: "price", "fundamentals" or
	// "market".
	Source string
	Score  int
	Err    error
	// Record is the fetched record for BelowThreshold results.
	Record *domain.Record
}

// Summary describes one run.
type Summary struct {
	Kind        string
	RunID       string
	Counts      map[Outcome]int
	Skipped     []string // blacklisted before the run
	NotStarted  int      // left unfed after a raise
	Blacklisted []string // added during the run
	Elapsed     time.Duration
}

// Total returns the number of tickers that produced a result.
func (s *Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// UpdateAll refreshes every stored ticker.
func (m *Manager) UpdateAll(ctx context.Context) (*Summary, error) {
	tickers, err := m.store.Tickers()
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	return m.run(ctx, "update", tickers)
}

// DownloadList fetches the given tickers, new or stored.
func (m *Manager) DownloadList(ctx context.Context, tickers []string) (*Summary, error) {
	return m.run(ctx, "download", tickers)
}

// run feeds tickers to a bounded pool. The calling goroutine is the single
// dispatcher: it hands out work, consumes every TaskResult and applies
// remediation, so the blacklist has one writer. Once remediation fails the
// dispatcher stops feeding and waits for in-flight tasks to drain.
func (m *Manager) run(ctx context.Context, kind string, tickers []string) (*Summary, error) {
	threshold, err := m.ComputeThreshold(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing threshold: %w", err)
	}

	sum := &Summary{Kind: kind, Counts: make(map[Outcome]int)}
	start := time.Now()

	var targets []string
	for _, t := range normalizeTargets(tickers) {
		if m.IsBlacklisted(t) {
			sum.Skipped = append(sum.Skipped, t)
			continue
		}
		targets = append(targets, t)
	}

	if m.journal != nil {
		id, err := m.journal.StartRun(ctx, kind)
		if err != nil {
			m.log.Error("starting journal run", "error", err)
		}
		sum.RunID = id
	}

	workers := m.cfg.poolSize(len(targets))
	m.log.Info("run starting",
		"kind", kind,
		"targets", len(targets),
		"skipped", len(sum.Skipped),
		"workers", workers,
		"threshold", threshold,
	)

	jobs := make(chan string)
	results := make(chan TaskResult, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				results <- m.process(ctx, t, threshold)
			}
		}()
	}

	var (
		next     int
		inflight int
		stopped  bool
		firstErr error
		done     = ctx.Done()
	)
	for (!stopped && next < len(targets)) || inflight > 0 {
		var send chan string
		var cur string
		if !stopped && next < len(targets) && inflight < workers {
			send, cur = jobs, targets[next]
		}

		select {
		case send <- cur:
			next++
			inflight++
		case res := <-results:
			inflight--
			sum.Counts[res.Outcome]++
			m.journalOutcome(ctx, sum.RunID, res)
			if err := m.remediate(ctx, res, sum); err != nil {
				m.log.Error("remediation halted run", "ticker", res.Ticker, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				stopped = true
			}
		case <-done:
			done = nil
			stopped = true
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}
	close(jobs)
	wg.Wait()

	sum.NotStarted = len(targets) - next
	sum.Elapsed = time.Since(start)
	m.log.Info("run finished",
		"kind", kind,
		"success", sum.Counts[Success],
		"not_found", sum.Counts[NotFound],
		"transient", sum.Counts[TransientError],
		"below_threshold", sum.Counts[BelowThreshold],
		"not_started", sum.NotStarted,
		"elapsed", sum.Elapsed.Round(time.Millisecond),
	)
	return sum, firstErr
}

// process is the per-ticker job run on a worker.
func (m *Manager) process(ctx context.Context, ticker string, threshold float64) TaskResult {
	rec, res := m.fetch(ctx, ticker)
	if res.Outcome != Success {
		return res
	}
	if float64(res.Score) < threshold {
		res.Outcome = BelowThreshold
		res.Record = rec
		return res
	}
	if err := m.store.Merge(rec); err != nil {
		res.Outcome, res.Err = TransientError, fmt.Errorf("saving %s: %w", ticker, err)
		m.log.Error("save failed", "ticker", ticker, "error", err)
		return res
	}
	return res
}

// fetch pulls prices then fundamentals. Not-found errors classify the task
// as NotFound; anything else is logged and reported as TransientError.
func (m *Manager) fetch(ctx context.Context, ticker string) (*domain.Record, TaskResult) {
	res := TaskResult{Ticker: ticker}

	classify := func(source string, err error) TaskResult {
		res.Source, res.Err = source, err
		if errors.Is(err, gather.ErrNotFound) {
			res.Outcome = NotFound
			return res
		}
		res.Outcome = TransientError
		m.log.Error("fetch failed", "ticker", ticker, "source", source, "error", err)
		return res
	}

	in, err := m.prices.Intraday(ctx, ticker, m.interval, m.cfg.RangeDays)
	if err == nil {
		err = m.checkShape(ticker, in)
	}
	if err != nil {
		return nil, classify("price", err)
	}
	fund, err := m.fundamentals.Fundamentals(ctx, ticker)
	if err != nil {
		return nil, classify("fundamentals", err)
	}

	rec, err := domain.NewRecord(ticker, in, fund)
	if err != nil {
		res.Outcome, res.Source, res.Err = NotFound, "market", err
		return nil, res
	}
	res.Outcome, res.Score = Success, in.Valid()
	return rec, res
}

// checkShape rejects price results the database cannot hold: no rows, fewer
// than two time columns, or bars at another interval. These count as not
// found so that no remediation mode ever stores them.
func (m *Manager) checkShape(ticker string, in *domain.Intraday) error {
	var closes *domain.Table
	if in != nil {
		closes = in.Tables[domain.FieldClose]
	}
	if closes.Rows() == 0 {
		return fmt.Errorf("%s: no bars: %w", ticker, gather.ErrNotFound)
	}
	iv, err := closes.Interval()
	if err != nil {
		return fmt.Errorf("%s: %v: %w", ticker, err, gather.ErrNotFound)
	}
	if iv != m.interval {
		return fmt.Errorf("%s: got %s bars, database holds %s: %w", ticker, iv, m.interval, gather.ErrNotFound)
	}
	return nil
}

// remediate applies the incomplete-data policy to a NotFound or
// BelowThreshold result. A non-nil error halts the run.
func (m *Manager) remediate(ctx context.Context, res TaskResult, sum *Summary) error {
	if res.Outcome != NotFound && res.Outcome != BelowThreshold {
		return nil
	}

	mode := m.cfg.IncompleteMode
	log := m.log.With("ticker", res.Ticker, "outcome", res.Outcome, "mode", mode)
	if mode != IncompleteNone {
		if !m.IsBlacklisted(res.Ticker) {
			sum.Blacklisted = append(sum.Blacklisted, res.Ticker)
		}
		m.addBlacklist(res.Ticker)
	}

	switch mode {
	case IncompleteDelete:
		if err := m.store.Delete(res.Ticker); err != nil {
			log.Error("delete failed", "error", err)
			return nil
		}
		log.Info("incomplete ticker deleted")

	case IncompleteMove:
		if m.cfg.MoveTo == "" {
			return ErrNoMoveTarget
		}
		err := m.store.Move(res.Ticker, m.cfg.MoveTo)
		switch {
		case errors.Is(err, store.ErrNoRecord):
			log.Debug("nothing stored to move")
		case err != nil:
			log.Error("move failed", "error", err)
		default:
			log.Info("incomplete ticker moved", "to", m.cfg.MoveTo)
		}

	case IncompleteRaise:
		return fmt.Errorf("%s (%s): %w", res.Ticker, res.Outcome, ErrIncomplete)

	case IncompleteIgnore:
		rec := res.Record
		if rec == nil {
			var again TaskResult
			rec, again = m.fetch(ctx, res.Ticker)
			if again.Outcome != Success {
				log.Warn("forced re-fetch failed", "source", again.Source, "error", again.Err)
				return nil
			}
		}
		if err := m.store.Merge(rec); err != nil {
			log.Warn("forced save failed", "error", err)
			return nil
		}
		log.Info("incomplete ticker saved anyway")

	case IncompleteBlacklist:
		log.Info("incomplete ticker blacklisted")
	}
	return nil
}

func (m *Manager) journalOutcome(ctx context.Context, runID string, res TaskResult) {
	if m.journal == nil || runID == "" {
		return
	}
	detail := res.Source
	if res.Err != nil {
		detail = fmt.Sprintf("%s: %v", res.Source, res.Err)
	}
	if err := m.journal.RecordOutcome(ctx, runID, res.Ticker, res.Outcome, detail); err != nil {
		m.log.Error("journal write failed", "ticker", res.Ticker, "error", err)
	}
}

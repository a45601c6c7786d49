// Package manager keeps a JSON-per-ticker database current: it fetches
// tickers through a bounded worker pool, scores each fetch against a
// sampled quality threshold and remediates the tickers that come back
// incomplete.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stockdb/internal/domain"
	"stockdb/internal/gather"
	"stockdb/internal/store"
)

var (
	// ErrIncomplete halts a batch in raise mode.
	ErrIncomplete = errors.New("incomplete ticker data")

	// ErrNoMoveTarget is returned in move mode without a destination.
	ErrNoMoveTarget = errors.New("move mode requires a destination directory")

	// ErrNoSamples is returned when no sample ticker could be scored.
	ErrNoSamples = errors.New("no sample ticker could be fetched")
)

// BlacklistSink persists blacklist additions as they happen.
type BlacklistSink interface {
	Add(tickers ...string) error
}

// Manager owns one database directory.
type Manager struct {
	cfg          Config
	store        store.RecordStore
	prices       gather.PriceSource
	fundamentals gather.FundamentalsSource
	interval     time.Duration
	journal      store.Journal
	sink         BlacklistSink
	log          *slog.Logger

	mu           sync.Mutex
	blacklist    []string
	blacklisted  map[string]struct{}
	threshold    float64
	hasThreshold bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal records every task outcome.
func WithJournal(j store.Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithBlacklistSink persists blacklist additions.
func WithBlacklistSink(s BlacklistSink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithLogger sets a logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// New creates a Manager over an opened database. The store's interval must
// be known; stores from store.OpenJSONStore satisfy this.
func New(cfg Config, s store.RecordStore, prices gather.PriceSource, fundamentals gather.FundamentalsSource, opts ...Option) (*Manager, error) {
	if s.Interval() <= 0 {
		return nil, fmt.Errorf("%w: bar interval unknown", store.ErrInvalidDatabase)
	}
	return newManager(cfg, s, prices, fundamentals, opts...)
}

func newManager(cfg Config, s store.RecordStore, prices gather.PriceSource, fundamentals gather.FundamentalsSource, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prices == nil || fundamentals == nil {
		return nil, errors.New("manager needs a price source and a fundamentals source")
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:          cfg,
		store:        s,
		prices:       prices,
		fundamentals: fundamentals,
		interval:     s.Interval(),
		blacklisted:  make(map[string]struct{}),
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "manager")

	for _, t := range cfg.Blacklist {
		t = strings.ToUpper(strings.TrimSpace(t))
		if _, dup := m.blacklisted[t]; t == "" || dup {
			continue
		}
		m.blacklisted[t] = struct{}{}
		m.blacklist = append(m.blacklist, t)
	}
	return m, nil
}

// Bootstrap creates a database at dir and seeds it with the sample tickers,
// unfiltered, then opens it. The returned Manager is ready for updates.
func Bootstrap(ctx context.Context, cfg Config, dir string, interval time.Duration, prices gather.PriceSource, fundamentals gather.FundamentalsSource, opts ...Option) (*Manager, error) {
	s, err := store.CreateJSONStore(dir, interval)
	if err != nil {
		return nil, err
	}

	seedCfg := cfg
	seedCfg.Tolerance = 1
	seedCfg.IncompleteMode = IncompleteNone
	seeder, err := newManager(seedCfg, s, prices, fundamentals, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := seeder.DownloadList(ctx, seeder.cfg.SampleTickers); err != nil {
		return nil, fmt.Errorf("seeding database: %w", err)
	}

	opened, err := store.OpenJSONStore(dir)
	if err != nil {
		return nil, fmt.Errorf("seeding database: %w", err)
	}
	return New(cfg, opened, prices, fundamentals, opts...)
}

// Interval returns the database bar interval.
func (m *Manager) Interval() time.Duration { return m.interval }

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Exists reports whether ticker is stored.
func (m *Manager) Exists(ticker string) bool { return m.store.Exists(ticker) }

// Delete removes ticker from the database.
func (m *Manager) Delete(ticker string) error { return m.store.Delete(ticker) }

// LoadAll reads every stored record.
func (m *Manager) LoadAll(ctx context.Context) ([]*domain.Record, error) {
	tickers, err := m.store.Tickers()
	if err != nil {
		return nil, err
	}
	recs := make([]*domain.Record, 0, len(tickers))
	for _, t := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := m.store.Load(t)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Blacklist returns a copy of the blacklist in insertion order.
func (m *Manager) Blacklist() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.blacklist...)
}

// IsBlacklisted reports whether ticker is on the blacklist.
func (m *Manager) IsBlacklisted(ticker string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklisted[strings.ToUpper(ticker)]
	return ok
}

// Threshold returns the session threshold and whether it was computed.
func (m *Manager) Threshold() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold, m.hasThreshold
}

// ComputeThreshold samples the configured tickers concurrently and sets the
// session threshold to their mean completeness score scaled by
// (1 − Tolerance). A tolerance of 1 yields zero without sampling. The value
// is computed once per Manager.
func (m *Manager) ComputeThreshold(ctx context.Context) (float64, error) {
	if th, ok := m.Threshold(); ok {
		return th, nil
	}
	if m.cfg.Tolerance >= 1 {
		m.setThreshold(0)
		return 0, nil
	}

	samples := m.cfg.SampleTickers
	scores := make([]int, len(samples))
	fetched := make([]bool, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(samples))
	for i, t := range samples {
		g.Go(func() error {
			in, err := m.prices.Intraday(gctx, t, m.interval, m.cfg.RangeDays)
			if err == nil {
				err = m.checkShape(t, in)
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				m.log.Warn("sample fetch failed", "ticker", t, "error", err)
				return nil
			}
			scores[i], fetched[i] = in.Valid(), true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var sum, n int
	for i := range samples {
		if fetched[i] {
			sum += scores[i]
			n++
		}
	}
	if n == 0 {
		return 0, ErrNoSamples
	}

	th := float64(sum) / float64(n) * (1 - m.cfg.Tolerance)
	m.setThreshold(th)
	m.log.Info("threshold computed", "threshold", th, "samples", n, "tolerance", m.cfg.Tolerance)
	return th, nil
}

func (m *Manager) setThreshold(th float64) {
	m.mu.Lock()
	m.threshold, m.hasThreshold = th, true
	m.mu.Unlock()
}

// addBlacklist records ticker and forwards it to the sink. Only the
// dispatcher calls it during a run.
func (m *Manager) addBlacklist(ticker string) {
	m.mu.Lock()
	_, dup := m.blacklisted[ticker]
	if !dup {
		m.blacklisted[ticker] = struct{}{}
		m.blacklist = append(m.blacklist, ticker)
	}
	m.mu.Unlock()

	if dup || m.sink == nil {
		return
	}
	if err := m.sink.Add(ticker); err != nil {
		m.log.Error("persisting blacklist entry", "ticker", ticker, "error", err)
	}
}

// normalizeTargets uppercases, deduplicates and sorts tickers.
func normalizeTargets(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

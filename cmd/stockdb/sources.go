package main

import (
	"errors"
	"io"
	"log/slog"

	"stockdb/internal/config"
	"stockdb/internal/gather"
	"stockdb/internal/gather/alpaca"
	"stockdb/internal/gather/worldtrade"
	"stockdb/internal/gather/zacks"
	"stockdb/internal/manager"
	"stockdb/internal/store"
)

// newPriceSource builds the configured intraday price source.
func newPriceSource(cfg *config.Config, log *slog.Logger) (gather.PriceSource, error) {
	if cfg.Source.Price == "alpaca" {
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return nil, errors.New("alpaca price source needs api_key and api_secret")
		}
		return alpaca.NewSource(alpaca.Options{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.APISecret,
			BaseURL:   cfg.Alpaca.BaseURL,
			DataURL:   cfg.Alpaca.DataURL,
			Feed:      cfg.Alpaca.Feed,
			RateLimit: cfg.Alpaca.RateLimitPerMin,
		}, log)
	}

	wt := cfg.Source.WorldTrade
	if wt.APIKey == "" {
		return nil, errors.New("worldtrade price source needs an api key (STOCKDB_API_KEY)")
	}
	opts := []worldtrade.Option{
		worldtrade.WithRateLimit(wt.RateLimitPerMin),
		worldtrade.WithLogger(log),
	}
	if wt.BaseURL != "" {
		opts = append(opts, worldtrade.WithBaseURL(wt.BaseURL))
	}
	return worldtrade.NewClient(wt.APIKey, opts...), nil
}

// newFundamentalsSource builds the quote page scraper.
func newFundamentalsSource(cfg *config.Config, log *slog.Logger) gather.FundamentalsSource {
	opts := []zacks.Option{
		zacks.WithRateLimit(cfg.Source.Zacks.RateLimitPerMin),
		zacks.WithLogger(log),
	}
	if cfg.Source.Zacks.BaseURL != "" {
		opts = append(opts, zacks.WithBaseURL(cfg.Source.Zacks.BaseURL))
	}
	return zacks.NewClient(opts...)
}

// closers collects resources to release when a command exits.
type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Close()
	}
}

// managerOptions opens the persistent blacklist and journal configured for
// the database and returns the manager options using them, the blacklist
// seed, and the resources to close.
func managerOptions(cfg *config.Config, log *slog.Logger) ([]manager.Option, []string, closers, error) {
	opts := []manager.Option{manager.WithLogger(log)}
	var seed []string
	var cl closers

	if cfg.Database.BlacklistFile != "" {
		bl, err := store.OpenBlacklist(cfg.Database.BlacklistFile)
		if err != nil {
			return nil, nil, nil, err
		}
		cl = append(cl, bl)
		seed = bl.List()
		opts = append(opts, manager.WithBlacklistSink(bl))
	}
	if cfg.Database.JournalPath != "" {
		j, err := openJournal(cfg)
		if err != nil {
			cl.Close()
			return nil, nil, nil, err
		}
		cl = append(cl, j)
		opts = append(opts, manager.WithJournal(j))
	}
	return opts, seed, cl, nil
}

func openJournal(cfg *config.Config) (*store.SQLiteJournal, error) {
	if err := ensureParent(cfg.Database.JournalPath); err != nil {
		return nil, err
	}
	return store.NewSQLiteJournal(cfg.Database.JournalPath)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stockdb/internal/domain"
	"stockdb/internal/health"
	"stockdb/internal/report"
	"stockdb/internal/store"
	"stockdb/internal/util"
)

func newHealthCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check every record and write a report of unhealthy tickers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if out != "" {
				a.cfg.Health.ReportPath = out
			}
			r, err := a.runHealth(ctx)
			if err != nil {
				return err
			}
			unhealthy := r.Unhealthy()
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d tickers, %d unhealthy\n", r.Checked, len(unhealthy))
			for _, t := range unhealthy {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", t, r.Tickers[t])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "report path (default health.report_path)")
	return cmd
}

// runHealth builds the health report for the configured database and writes
// it when a report path is set.
func (a *app) runHealth(ctx context.Context) (*report.Report, error) {
	s, err := store.OpenJSONStore(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	rules := util.NewTradingCalendar(domain.MarketNASDAQ)
	opts := health.Options{
		NaNAllowed:     a.cfg.Health.NaNAllowed,
		MissingAllowed: a.cfg.Health.MissingAllowed,
		Calendar:       rules,
	}
	latest := time.Now()
	if a.cfg.Health.Calendar == "alpaca" {
		ac := util.NewAlpacaCalendar(a.cfg.Alpaca.APIKey, a.cfg.Alpaca.APISecret, a.cfg.Alpaca.BaseURL)
		opts.Calendar = ac
		if d, err := ac.LatestFinishedTradingDay(ctx); err == nil {
			latest = d
		} else {
			a.log.Warn("latest trading day unavailable, using today", "error", err)
		}
	}
	if a.cfg.Health.StaleDays > 0 {
		opts.StaleCutoff = rules.AddDays(latest, -a.cfg.Health.StaleDays)
	}

	ropts := report.Options{Workers: a.cfg.Health.Workers, Logger: a.log}
	if a.cfg.Database.JournalPath != "" {
		j, err := openJournal(a.cfg)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		ropts.Journal = j
	}

	r, err := report.Build(ctx, s, health.Standard(ctx, opts), ropts)
	if err != nil {
		return nil, err
	}
	if a.cfg.Health.ReportPath != "" {
		if err := r.WriteFile(a.cfg.Health.ReportPath); err != nil {
			return nil, err
		}
		a.log.Info("health report written", "path", a.cfg.Health.ReportPath, "unhealthy", len(r.Tickers))
	}
	return r, nil
}

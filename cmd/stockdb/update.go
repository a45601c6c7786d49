package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"stockdb/internal/gather"
	"stockdb/internal/manager"
	"stockdb/internal/store"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new database seeded with the sample tickers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			prices, err := newPriceSource(a.cfg, a.log)
			if err != nil {
				return err
			}
			opts, seed, cl, err := managerOptions(a.cfg, a.log)
			if err != nil {
				return err
			}
			defer cl.Close()

			m, err := manager.Bootstrap(ctx, a.cfg.ManagerConfig(seed), a.cfg.Database.Path,
				a.cfg.Interval(), prices, newFundamentalsSource(a.cfg, a.log), opts...)
			if err != nil {
				return err
			}
			a.log.Info("database created", "path", a.cfg.Database.Path, "interval", m.Interval())
			return nil
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh every ticker already in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sum, err := a.runUpdate(ctx, nil)
			if sum != nil {
				printSummary(cmd, sum)
			}
			return err
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var listPath string
	cmd := &cobra.Command{
		Use:   "download [tickers...]",
		Short: "Download tickers into the database",
		Long: `Download the given tickers, or the tickers listed in --list (falling back
to update.ticker_list from the config), merging them into the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			tickers := args
			if listPath == "" && len(tickers) == 0 {
				listPath = a.cfg.Update.TickerList
			}
			if listPath != "" {
				listed, err := gather.LoadTickerList(listPath)
				if err != nil {
					return err
				}
				tickers = append(tickers, listed...)
			}
			if len(tickers) == 0 {
				return fmt.Errorf("no tickers given")
			}

			sum, err := a.runUpdate(ctx, tickers)
			if sum != nil {
				printSummary(cmd, sum)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&listPath, "list", "l", "", "CSV or plain-text file of tickers")
	return cmd
}

// runUpdate opens the manager and refreshes the database, or downloads
// tickers when the list is non-empty.
func (a *app) runUpdate(ctx context.Context, tickers []string) (*manager.Summary, error) {
	prices, err := newPriceSource(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	s, err := store.OpenJSONStore(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	opts, seed, cl, err := managerOptions(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m, err := manager.New(a.cfg.ManagerConfig(seed), s, prices, newFundamentalsSource(a.cfg, a.log), opts...)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return m.UpdateAll(ctx)
	}
	return m.DownloadList(ctx, tickers)
}

func printSummary(cmd *cobra.Command, sum *manager.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s run %s: %d tickers in %s\n", sum.Kind, sum.RunID, sum.Total(), sum.Elapsed.Round(time.Millisecond))
	for _, o := range []manager.Outcome{manager.Success, manager.NotFound, manager.TransientError, manager.BelowThreshold} {
		fmt.Fprintf(out, "  %-16s %d\n", o, sum.Counts[o])
	}
	if len(sum.Skipped) > 0 {
		fmt.Fprintf(out, "  skipped          %d (blacklisted)\n", len(sum.Skipped))
	}
	if sum.NotStarted > 0 {
		fmt.Fprintf(out, "  not started      %d\n", sum.NotStarted)
	}
	if len(sum.Blacklisted) > 0 {
		fmt.Fprintf(out, "  blacklisted      %v\n", sum.Blacklisted)
	}
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stockdb/internal/store"
)

func newExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export [tickers...]",
		Short: "Export records as Parquet bar files",
		Long: `Flatten each record's intraday tables into one Parquet row per bar and
merge them into <dir>/<TICKER>.parquet. With no arguments every stored ticker
is exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if dir == "" {
				dir = a.cfg.Database.ParquetDir
			}
			s, err := store.OpenJSONStore(a.cfg.Database.Path)
			if err != nil {
				return err
			}
			tickers := args
			if len(tickers) == 0 {
				if tickers, err = s.Tickers(); err != nil {
					return err
				}
			}

			exp := store.NewParquetExporter(dir)
			total := 0
			for _, t := range tickers {
				if err := ctx.Err(); err != nil {
					return err
				}
				rec, err := s.Load(t)
				if err != nil {
					return err
				}
				n, err := exp.WriteRecord(rec)
				if err != nil {
					return err
				}
				a.log.Debug("exported", "ticker", rec.Ticker, "bars", n)
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d tickers (%d bars) to %s\n", len(tickers), total, dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (default database.parquet_dir)")
	return cmd
}

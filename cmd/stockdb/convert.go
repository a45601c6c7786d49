package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stockdb/internal/legacy"
	"stockdb/internal/store"
)

func newConvertCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert between the JSON database and the legacy CSV layout",
	}
	cmd.PersistentFlags().StringVarP(&dir, "dir", "d", "", "legacy CSV directory (default database.legacy_dir)")

	legacyDir := func() string {
		if dir != "" {
			return dir
		}
		return a.cfg.Database.LegacyDir
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "to-csv",
		Short: "Write every record as per-field CSV files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := store.OpenJSONStore(a.cfg.Database.Path)
			if err != nil {
				return err
			}
			n, err := legacy.ToCSV(ctx, s, legacyDir())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tickers to %s\n", n, legacyDir())
			return nil
		},
	})

	var interval int
	fromCmd := &cobra.Command{
		Use:   "from-csv",
		Short: "Import a legacy CSV directory into a new JSON database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			iv := a.cfg.Interval()
			if interval > 0 {
				iv = time.Duration(interval) * time.Minute
			}
			s, err := store.CreateJSONStore(a.cfg.Database.Path, iv)
			if err != nil {
				return err
			}
			n, err := legacy.FromCSV(ctx, legacyDir(), s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d tickers into %s\n", n, a.cfg.Database.Path)
			return nil
		},
	}
	fromCmd.Flags().IntVar(&interval, "interval", 0, "bar interval in minutes (default database.interval_minutes)")
	cmd.AddCommand(fromCmd)

	return cmd
}

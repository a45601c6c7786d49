package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stockdb/internal/config"
	"stockdb/internal/util"
)

// app carries state shared by every subcommand once the root command has
// loaded the configuration.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "stockdb",
		Short: "Intraday stock database manager",
		Long: `stockdb keeps a directory of per-ticker JSON records of intraday prices
and fundamentals up to date, remediates incomplete downloads and reports on
data quality.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			a.log = util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			util.SetDefault(a.log)
			return nil
		},
	}

	cfgPath := "config/stockdb.yaml"
	if p := os.Getenv("STOCKDB_CONFIG"); p != "" {
		cfgPath = p
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", cfgPath, "path to the YAML config file (empty for defaults)")

	root.AddCommand(
		newInitCmd(a),
		newUpdateCmd(a),
		newDownloadCmd(a),
		newHealthCmd(a),
		newConvertCmd(a),
		newExportCmd(a),
		newScheduleCmd(a),
		newBlacklistCmd(a),
	)
	return root
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

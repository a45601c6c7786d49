package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"stockdb/internal/scheduler"
)

func newScheduleCmd(a *app) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run update and health checks on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			loc := time.Local
			if tz := a.cfg.Schedule.Timezone; tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return err
				}
				loc = l
			}

			s := scheduler.New(ctx, loc, a.log)
			if err := s.Add("update", a.cfg.Schedule.Update, func(ctx context.Context) error {
				sum, err := a.runUpdate(ctx, nil)
				if sum != nil {
					a.log.Info("update summary", "run_id", sum.RunID, "total", sum.Total(),
						"blacklisted", len(sum.Blacklisted), "elapsed", sum.Elapsed)
				}
				return err
			}); err != nil {
				return err
			}
			if err := s.Add("health", a.cfg.Schedule.Health, func(ctx context.Context) error {
				_, err := a.runHealth(ctx)
				return err
			}); err != nil {
				return err
			}

			if runNow {
				// Failures are logged by the scheduler.
				_ = s.RunNow("update")
				_ = s.RunNow("health")
			}

			s.Start()
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run both jobs once before waiting for the schedule")
	return cmd
}

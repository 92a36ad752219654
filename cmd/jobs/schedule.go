package main

import (
	"os"
	"os/signal"
	"syscall"

	"coin_ledger/internal/jobs"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func scheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run every job on its cron schedule until interrupted",
		Long:  `Uses ROLLOVER_SCHEDULE, PAYOUT_SCHEDULE and RECONCILE_SCHEDULE in APP_TIMEZONE. Runs share a Redis lock with the HTTP triggers.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			s := jobs.NewScheduler(a.Jobs, a.Config.Timezone)
			if err := s.Start(ctx, jobs.Schedules{
				Rollover:  a.Config.RolloverSchedule,
				Payout:    a.Config.PayoutSchedule,
				Reconcile: a.Config.ReconcileSchedule,
			}); err != nil {
				return err
			}

			<-ctx.Done()
			logrus.Info("Shutting down scheduler")
			s.Stop()
			return nil
		},
	}
}

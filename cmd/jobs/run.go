package main

import (
	"context"
	"fmt"

	"coin_ledger/internal/app"
	"coin_ledger/internal/config"
	"coin_ledger/internal/payout"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// bootstrap loads configuration and wires the services
func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	app.SetupLogging(cfg)
	return app.New(ctx, cfg)
}

func runCommand(job, short string) *cobra.Command {
	return &cobra.Command{
		Use:   job,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var report *payout.Report
			switch job {
			case "rollover":
				moved, err := a.Jobs.RunRollover(ctx)
				if err != nil {
					return err
				}
				logrus.WithField("wallets", moved).Info("Rollover finished")
				return nil
			case "payout":
				report, err = a.Jobs.RunPayout(ctx)
			case "reconcile":
				report, err = a.Jobs.RunReconcile(ctx)
			default:
				return fmt.Errorf("unknown job %q", job)
			}
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"job":        job,
				"candidates": report.Candidates,
				"paid":       report.Paid,
				"skipped":    report.Skipped,
				"failed":     report.Failed,
				"reconciled": report.Reconciled,
				"paid_cents": report.PaidCents,
			}).Info("Job finished")
			return nil
		},
	}
}

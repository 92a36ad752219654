// Command jobs runs the payout calendar: one-shot runs for external
// schedulers, an in-process cron loop, and scheduler tokens for the HTTP
// trigger endpoints.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jobs",
	Short: "coin ledger payout jobs",
	Long:  `Moves creator profit into the payout bucket, disburses payouts and reconciles transfers with an unknown outcome.`,
}

func init() {
	rootCmd.AddCommand(runCommand("rollover", "Move monthly profit into the payout bucket"))
	rootCmd.AddCommand(runCommand("payout", "Disburse payout buckets to connected accounts"))
	rootCmd.AddCommand(runCommand("reconcile", "Retry payouts whose transfer outcome is unknown"))
	rootCmd.AddCommand(scheduleCommand())
	rootCmd.AddCommand(tokenCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

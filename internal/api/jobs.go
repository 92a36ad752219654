package api

import (
	"net/http" // HTTP status codes

	"coin_ledger/internal/jobs" // Batch job runner

	"github.com/gin-gonic/gin" // Gin web framework
)

// PayoutHandler runs the payout job for the external scheduler
func PayoutHandler(runner *jobs.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := runner.RunPayout(c.Request.Context())
		if err != nil {
			writeLedgerError(c, "payout", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// MoveMonthlyToPayoutHandler runs the monthly rollover for the external scheduler
func MoveMonthlyToPayoutHandler(runner *jobs.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		moved, err := runner.RunRollover(c.Request.Context())
		if err != nil {
			writeLedgerError(c, "move_monthly_to_payout", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallets": moved}) // Wallets rolled over
	}
}

// ReconcilePayoutsHandler retries payouts with an unknown outcome
func ReconcilePayoutsHandler(runner *jobs.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := runner.RunReconcile(c.Request.Context())
		if err != nil {
			writeLedgerError(c, "reconcile_payouts", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

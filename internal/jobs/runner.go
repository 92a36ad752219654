// Package jobs runs the payout batch jobs, either on demand (HTTP trigger or
// CLI) or from an in-process cron schedule.
package jobs

import (
	"context"
	"errors"
	"time"

	"coin_ledger/internal/payout"
	"coin_ledger/internal/utils"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrJobRunning is returned when another process holds the job lock
var ErrJobRunning = errors.New("a payout job is already running")

// All jobs share one lock: rollover, payout and reconcile touch the same
// payout buckets.
const (
	lockKey = "money:jobs:lock"
	lockTTL = 2 * time.Hour
)

// Runner executes payout jobs one at a time across every process sharing rdb
type Runner struct {
	payout *payout.Service
	rdb    *redis.Client
}

// NewRunner returns a Runner. With a nil rdb there is no cross-process lock.
func NewRunner(svc *payout.Service, rdb *redis.Client) *Runner {
	return &Runner{payout: svc, rdb: rdb}
}

// RunRollover moves every monthly profit into the payout bucket
func (r *Runner) RunRollover(ctx context.Context) (int, error) {
	var moved int
	err := r.exclusive(ctx, "rollover", func(ctx context.Context) error {
		var err error
		moved, err = r.payout.MoveMonthlyBalanceToPayoutBalance(ctx)
		return err
	})
	return moved, err
}

// RunPayout disburses every eligible payout bucket
func (r *Runner) RunPayout(ctx context.Context) (*payout.Report, error) {
	return r.report(ctx, "payout", r.payout.Payout)
}

// RunReconcile settles payouts whose transfer outcome is unknown
func (r *Runner) RunReconcile(ctx context.Context) (*payout.Report, error) {
	return r.report(ctx, "reconcile", r.payout.Reconcile)
}

func (r *Runner) report(ctx context.Context, job string, fn func(context.Context) (*payout.Report, error)) (*payout.Report, error) {
	var rep *payout.Report
	err := r.exclusive(ctx, job, func(ctx context.Context) error {
		var err error
		rep, err = fn(ctx)
		return err
	})
	return rep, err
}

func (r *Runner) exclusive(ctx context.Context, job string, fn func(context.Context) error) error {
	entry := log.WithFields(log.Fields{"component": "jobs", "job": job})
	release, ok, err := utils.AcquireLock(ctx, r.rdb, lockKey, lockTTL)
	if err != nil {
		entry.WithError(err).Error("Job lock unavailable")
		return err
	}
	if !ok {
		entry.Warn("Job skipped, another run holds the lock")
		return ErrJobRunning
	}
	defer release()

	started := time.Now()
	entry.Info("Job started")
	if err := fn(ctx); err != nil {
		entry.WithError(err).Error("Job failed")
		return err
	}
	entry.WithField("took", time.Since(started).String()).Info("Job finished")
	return nil
}

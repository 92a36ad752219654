// Package metrics holds the Prometheus collectors of the ledger
package metrics

import (
	"errors"

	"coin_ledger/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome",
		},
		[]string{"operation", "result"},
	)

	coinsMoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_coins_moved_total",
			Help: "Coins moved by committed ledger operations",
		},
		[]string{"operation"},
	)

	payoutOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_payouts_total",
			Help: "Per-wallet payout outcomes",
		},
		[]string{"outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_job_duration_seconds",
			Help:    "Duration of batch jobs",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)
)

// Payout outcomes
const (
	PayoutPaid       = "paid"
	PayoutSkipped    = "skipped"
	PayoutFailed     = "failed"
	PayoutReconciled = "reconciled"
)

// Result classifies err for the result label
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNegativeAmount),
		errors.Is(err, domain.ErrOverMaximumAmount),
		errors.Is(err, domain.ErrNotEnoughBalance),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrAlreadyPurchased),
		errors.Is(err, domain.ErrAlreadyCredited),
		errors.Is(err, domain.ErrEpisodeNotPurchasable),
		errors.Is(err, domain.ErrProfileNotFound):
		return "rejected"
	}
	return "error"
}

// ObserveOperation counts one ledger operation and, on success, its coins
func ObserveOperation(operation string, coins int64, err error) {
	ledgerOperations.WithLabelValues(operation, Result(err)).Inc()
	if err == nil && coins > 0 {
		coinsMoved.WithLabelValues(operation).Add(float64(coins))
	}
}

// ObservePayout counts one per-wallet payout outcome
func ObservePayout(outcome string) {
	payoutOutcomes.WithLabelValues(outcome).Inc()
}

// JobTimer starts timing a batch job; call ObserveDuration when it ends
func JobTimer(job string) *prometheus.Timer {
	return prometheus.NewTimer(jobDuration.WithLabelValues(job))
}

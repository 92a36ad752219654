// Package payout runs the monthly batch jobs: rolling creator profit into the
// payout bucket and disbursing payout buckets to connected accounts.
package payout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"coin_ledger/internal/config"
	"coin_ledger/internal/domain"
	"coin_ledger/internal/gateway"
	"coin_ledger/internal/metrics"
	"coin_ledger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Report summarizes one Payout run
type Report struct {
	Candidates int   `json:"candidates"`
	Paid       int   `json:"paid"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Reconciled int   `json:"reconciled"`
	PaidCents  int64 `json:"paid_cents"`
}

// Service owns the payout jobs
type Service struct {
	store   store.Store
	gateway gateway.Gateway
	cfg     config.Ledger
	log     *logrus.Entry
}

// NewService returns a payout Service
func NewService(st store.Store, gw gateway.Gateway, cfg config.Ledger) *Service {
	return &Service{
		store:   st,
		gateway: gw,
		cfg:     cfg,
		log:     logrus.WithField("component", "payout"),
	}
}

// MoveMonthlyBalanceToPayoutBalance rolls every wallet's monthly profit into
// its payout bucket in one transaction. Running it twice in a row changes
// nothing the second time. It returns the number of wallets rolled over.
func (s *Service) MoveMonthlyBalanceToPayoutBalance(ctx context.Context) (int, error) {
	timer := metrics.JobTimer("rollover")
	defer timer.ObserveDuration()

	var moved int
	var coins int64
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		wallets, err := tx.LockProfitableWallets()
		if err != nil {
			return err
		}
		for _, w := range wallets {
			coins += w.MonthlyProfitBalance
			w.PayoutBalance += w.MonthlyProfitBalance
			w.PayoutUSDValue = w.PayoutUSDValue.Add(w.MonthlyProfitUSDValue)
			w.MonthlyProfitBalance = 0
			w.MonthlyProfitUSDValue = decimal.Zero
		}
		moved = len(wallets)
		if moved == 0 {
			return nil
		}
		return tx.SaveWallets(wallets...)
	})
	metrics.ObserveOperation("rollover", coins, err)
	if err != nil {
		s.log.WithError(err).Error("Monthly rollover failed")
		return 0, fmt.Errorf("move monthly balance: %w", err)
	}

	s.log.WithFields(logrus.Fields{"wallets": moved, "coins": coins}).Info("Monthly profit moved to payout balance")
	return moved, nil
}

// Payout disburses every eligible payout bucket. A wallet that can't be paid
// this cycle is skipped and keeps its balance; only a failure to read the
// candidate list fails the run.
func (s *Service) Payout(ctx context.Context) (*Report, error) {
	timer := metrics.JobTimer("payout")
	defer timer.ObserveDuration()

	report := &Report{}
	if err := s.reconcile(ctx, report); err != nil {
		return report, err
	}

	candidates, err := s.store.PayoutCandidates(ctx, s.cfg.MinPayoutCoins)
	if err != nil {
		return report, fmt.Errorf("payout: %w", err)
	}
	report.Candidates = len(candidates)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.payoutWallet(ctx, c, report)
	}

	s.log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"paid":       report.Paid,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
		"reconciled": report.Reconciled,
		"paid_cents": report.PaidCents,
	}).Info("Payout run finished")
	return report, nil
}

// Reconcile settles attempts whose transfer outcome is still unknown. The
// processor only honors idempotency keys for a limited time, so this runs
// more often than Payout.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	timer := metrics.JobTimer("reconcile")
	defer timer.ObserveDuration()

	report := &Report{}
	err := s.reconcile(ctx, report)
	return report, err
}

// reconcile retries the transfer of every PENDING attempt under its original
// idempotency key
func (s *Service) reconcile(ctx context.Context, report *Report) error {
	pending, err := s.store.PendingPayoutAttempts(ctx)
	if err != nil {
		return fmt.Errorf("pending payout attempts: %w", err)
	}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := &pending[i]
		entry := s.log.WithFields(logrus.Fields{"attempt_id": a.ID, "owner_id": a.OwnerID})
		entry.Warn("Reconciling pending payout")
		if err := s.disburse(ctx, a); err != nil {
			entry.WithError(err).Error("Pending payout still unsettled")
			continue
		}
		report.Reconciled++
		metrics.ObservePayout(metrics.PayoutReconciled)
		s.count(a, report)
	}
	return nil
}

func (s *Service) payoutWallet(ctx context.Context, candidate domain.Wallet, report *Report) {
	accountID := *candidate.StripeConnectAccount
	entry := s.log.WithFields(logrus.Fields{"owner_id": candidate.OwnerID, "account_id": accountID})

	status, err := s.gateway.GetAccountStatus(ctx, accountID)
	if err != nil {
		entry.WithError(err).Error("Payout account lookup failed")
		s.skip(report)
		return
	}
	if !status.ChargesEnabled {
		entry.Info("Payout account not enabled yet")
		s.skip(report)
		return
	}

	profile, err := s.store.GetProfile(ctx, candidate.OwnerID)
	if err != nil {
		entry.WithError(err).Error("Payout owner lookup failed")
		s.skip(report)
		return
	}

	attempt, err := s.reserve(ctx, candidate.OwnerID, accountID, profile.PayoutStatus)
	if err != nil {
		entry.WithError(err).Error("Payout reservation failed")
		s.skip(report)
		return
	}
	if attempt == nil {
		s.skip(report)
		return
	}

	if err := s.disburse(ctx, attempt); err != nil {
		// Still PENDING; Reconcile picks it up
		entry.WithError(err).Error("Payout outcome unknown")
	}
	s.count(attempt, report)
}

func (s *Service) count(a *domain.PayoutAttempt, report *Report) {
	switch a.Status {
	case domain.PayoutSucceeded:
		report.Paid++
		report.PaidCents += a.AmountCents
	default:
		report.Failed++
	}
}

func (s *Service) skip(report *Report) {
	report.Skipped++
	metrics.ObservePayout(metrics.PayoutSkipped)
}

// reserve locks the wallet, re-checks eligibility, and moves the payout bucket
// into a PENDING attempt. It returns nil when there is nothing to pay.
func (s *Service) reserve(ctx context.Context, ownerID uint, accountID string, tier domain.PayoutStatus) (*domain.PayoutAttempt, error) {
	var attempt *domain.PayoutAttempt
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		wallets, err := tx.LockWallets(ownerID)
		if err != nil {
			return err
		}
		w := wallets[ownerID]
		// The bucket or account may have changed since candidates were read
		if w.PayoutBalance < s.cfg.MinPayoutCoins || w.PayoutBalance <= 0 ||
			!w.HasConnectAccount() || *w.StripeConnectAccount != accountID {
			return nil
		}

		fee, err := PlatformFee(w.PayoutUSDValue, tier, s.cfg)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"owner_id":   ownerID,
				"payout_usd": w.PayoutUSDValue.String(),
			}).WithError(err).Warn("Payout value not positive")
			return nil
		}
		amount := w.PayoutUSDValue.Sub(decimal.NewFromInt(fee)).Floor().IntPart()
		if amount <= 0 {
			return nil
		}

		attempt = &domain.PayoutAttempt{
			ID:          uuid.NewString(),
			OwnerID:     ownerID,
			AccountID:   accountID,
			CoinAmount:  w.PayoutBalance,
			USDValue:    w.PayoutUSDValue,
			PlatformFee: fee,
			AmountCents: amount,
			Status:      domain.PayoutPending,
		}
		if err := tx.CreatePayoutAttempt(attempt); err != nil {
			return err
		}
		w.PayoutBalance = 0
		w.PayoutUSDValue = decimal.Zero
		return tx.SaveWallets(w)
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// disburse calls the gateway for a reserved attempt and records the outcome,
// updating a in place. A declined transfer restores the payout bucket. Any
// other gateway error leaves the attempt PENDING and is returned.
func (s *Service) disburse(ctx context.Context, a *domain.PayoutAttempt) error {
	transferErr := s.gateway.TransferFunds(ctx, gateway.TransferRequest{
		AccountID:   a.AccountID,
		AmountCents: a.AmountCents,
		Metadata: map[string]string{
			"coins":          strconv.FormatInt(a.CoinAmount, 10),
			"eligible_value": a.USDValue.String(),
			"platform_fee":   strconv.FormatInt(a.PlatformFee, 10),
		},
		IdempotencyKey: a.ID,
	})
	if transferErr != nil && !errors.Is(transferErr, gateway.ErrTransferDeclined) {
		return fmt.Errorf("transfer %s: %w", a.ID, transferErr)
	}

	var settled domain.PayoutAttempt
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockPayoutAttempt(a.ID)
		if err != nil {
			return err
		}
		if locked.Status != domain.PayoutPending {
			settled = *locked
			return nil
		}

		if transferErr == nil {
			locked.Status = domain.PayoutSucceeded
			rec := domain.NewTransaction(domain.TransactionWithdraw, locked.OwnerID, locked.OwnerID, locked.CoinAmount, locked.USDValue)
			if err := tx.CreateTransaction(rec); err != nil {
				return err
			}
		} else {
			locked.Status = domain.PayoutFailed
			locked.Error = truncate(transferErr.Error(), 1000)
			wallets, err := tx.LockWallets(locked.OwnerID)
			if err != nil {
				return err
			}
			w := wallets[locked.OwnerID]
			w.PayoutBalance += locked.CoinAmount
			w.PayoutUSDValue = w.PayoutUSDValue.Add(locked.USDValue)
			if err := tx.SaveWallets(w); err != nil {
				return err
			}
		}
		if err := tx.SavePayoutAttempt(locked); err != nil {
			return err
		}
		settled = *locked
		return nil
	})
	if err != nil {
		return fmt.Errorf("settle payout %s: %w", a.ID, err)
	}
	*a = settled

	entry := s.log.WithFields(logrus.Fields{
		"attempt_id":   a.ID,
		"owner_id":     a.OwnerID,
		"account_id":   a.AccountID,
		"coins":        a.CoinAmount,
		"usd":          a.USDValue.String(),
		"platform_fee": a.PlatformFee,
		"amount_cents": a.AmountCents,
	})
	if a.Status == domain.PayoutSucceeded {
		metrics.ObservePayout(metrics.PayoutPaid)
		entry.Info("Payout successful")
		return nil
	}
	metrics.ObservePayout(metrics.PayoutFailed)
	entry.WithField("reason", a.Error).Error("Payout declined, balance restored")
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

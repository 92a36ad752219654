// Package gormstore implements store.Store on MySQL or PostgreSQL through GORM.
// Wallet rows are locked with SELECT ... FOR UPDATE in ascending owner order.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coin_ledger/internal/domain"
	"coin_ledger/internal/store"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var forUpdate = clause.Locking{Strength: "UPDATE"}

// Store wraps a *gorm.DB
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New returns a Store backed by db
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for seeding and migrations
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *Store) CreateProfile(ctx context.Context, p *domain.Profile) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id uint) (*domain.Profile, error) {
	var p domain.Profile
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, domain.ErrProfileNotFound)
	}
	return &p, nil
}

func (s *Store) GetProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	var p domain.Profile
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&p).Error; err != nil {
		return nil, notFound(err, domain.ErrProfileNotFound)
	}
	return &p, nil
}

func (s *Store) GetEpisode(ctx context.Context, id uint) (*domain.Episode, error) {
	var e domain.Episode
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, notFound(err, domain.ErrEpisodeNotFound)
	}
	return &e, nil
}

func (s *Store) GetWallet(ctx context.Context, ownerID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&w).Error; err != nil {
		return nil, notFound(err, domain.ErrWalletNotFound)
	}
	return &w, nil
}

func (s *Store) EnsureWallet(ctx context.Context, ownerID uint) (*domain.Wallet, error) {
	if w, err := s.GetWallet(ctx, ownerID); err == nil {
		return w, nil
	} else if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}
	var out *domain.Wallet
	err := s.InTx(ctx, func(tx store.Tx) error {
		ws, err := tx.LockWallets(ownerID)
		if err != nil {
			return err
		}
		out = ws[ownerID]
		return nil
	})
	return out, err
}

func (s *Store) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]domain.Transaction, int64, error) {
	q := s.db.WithContext(ctx).Model(&domain.Transaction{})
	if f.ProfileID != 0 {
		q = q.Where(s.db.Where("sender_id = ?", f.ProfileID).Or("recipient_id = ?", f.ProfileID))
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at <= ?", f.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	q = q.Preload("Sender").Preload("Recipient").Order("created_at DESC").Order("id DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var txs []domain.Transaction
	if err := q.Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, total, nil
}

type sumRow struct {
	Coins    int64
	USDValue decimal.NullDecimal
}

func (r sumRow) usd() decimal.Decimal {
	if !r.USDValue.Valid {
		return decimal.Zero
	}
	return r.USDValue.Decimal
}

func (s *Store) RecentIncome(ctx context.Context, recipientID uint, since time.Time) (store.Income, error) {
	var row sumRow
	err := s.db.WithContext(ctx).Model(&domain.Transaction{}).
		Select("COALESCE(SUM(coin_amount), 0) AS coins, SUM(usd_value) AS usd_value").
		Where("type = ? AND recipient_id = ? AND created_at >= ?", domain.TransactionPurchase, recipientID, since).
		Scan(&row).Error
	if err != nil {
		return store.Income{}, fmt.Errorf("sum income: %w", err)
	}
	return store.Income{Coins: row.Coins, USDValue: row.usd()}, nil
}

func (s *Store) PayoutCandidates(ctx context.Context, minCoins int64) ([]domain.Wallet, error) {
	var ws []domain.Wallet
	err := s.db.WithContext(ctx).
		Where("payout_balance > 0 AND payout_balance >= ?", minCoins).
		Where("stripe_connect_account IS NOT NULL AND stripe_connect_account <> ''").
		Order("owner_id").
		Find(&ws).Error
	if err != nil {
		return nil, fmt.Errorf("payout candidates: %w", err)
	}
	return ws, nil
}

func (s *Store) PendingPayoutAttempts(ctx context.Context) ([]domain.PayoutAttempt, error) {
	var as []domain.PayoutAttempt
	err := s.db.WithContext(ctx).Where("status = ?", domain.PayoutPending).Order("created_at").Find(&as).Error
	if err != nil {
		return nil, fmt.Errorf("pending payout attempts: %w", err)
	}
	return as, nil
}

func (s *Store) LedgerTotals(ctx context.Context) (*store.Totals, error) {
	db := s.db.WithContext(ctx)
	t := &store.Totals{}

	var wallets sumRow
	err := db.Model(&domain.Wallet{}).
		Select("COALESCE(SUM(balance + monthly_profit_balance + payout_balance), 0) AS coins, " +
			"SUM(usd_value + monthly_profit_usd_value + payout_usd_value) AS usd_value").
		Scan(&wallets).Error
	if err != nil {
		return nil, fmt.Errorf("sum wallets: %w", err)
	}
	t.WalletCoins, t.WalletUSD = wallets.Coins, wallets.usd()

	var pending sumRow
	err = db.Model(&domain.PayoutAttempt{}).
		Select("COALESCE(SUM(coin_amount), 0) AS coins, SUM(usd_value) AS usd_value").
		Where("status = ?", domain.PayoutPending).
		Scan(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("sum pending payouts: %w", err)
	}
	t.PendingCoins, t.PendingUSD = pending.Coins, pending.usd()

	for typ, dst := range map[domain.TransactionType]*sumRow{
		domain.TransactionDeposit:  {},
		domain.TransactionWithdraw: {},
	} {
		err = db.Model(&domain.Transaction{}).
			Select("COALESCE(SUM(coin_amount), 0) AS coins, SUM(usd_value) AS usd_value").
			Where("type = ?", typ).
			Scan(dst).Error
		if err != nil {
			return nil, fmt.Errorf("sum %s transactions: %w", typ, err)
		}
		if typ == domain.TransactionDeposit {
			t.DepositCoins, t.DepositUSD = dst.Coins, dst.usd()
		} else {
			t.WithdrawCoins, t.WithdrawUSD = dst.Coins, dst.usd()
		}
	}
	return t, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockWallets(ownerIDs ...uint) (map[uint]*domain.Wallet, error) {
	ids := store.SortedOwners(ownerIDs)
	if len(ids) == 0 {
		return map[uint]*domain.Wallet{}, nil
	}

	var profiles int64
	if err := t.db.Model(&domain.Profile{}).Where("id IN ?", ids).Count(&profiles).Error; err != nil {
		return nil, fmt.Errorf("check profiles: %w", err)
	}
	if profiles != int64(len(ids)) {
		return nil, domain.ErrProfileNotFound
	}

	var existing []uint
	if err := t.db.Model(&domain.Wallet{}).Where("owner_id IN ?", ids).Pluck("owner_id", &existing).Error; err != nil {
		return nil, fmt.Errorf("find wallets: %w", err)
	}
	have := make(map[uint]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}
	for _, id := range ids {
		if have[id] {
			continue
		}
		// A concurrent creator may win the insert; the lock below still sees its row
		if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(domain.NewWallet(id)).Error; err != nil {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
	}

	var ws []*domain.Wallet
	if err := t.db.Clauses(forUpdate).Where("owner_id IN ?", ids).Order("owner_id").Find(&ws).Error; err != nil {
		return nil, fmt.Errorf("lock wallets: %w", err)
	}
	out := make(map[uint]*domain.Wallet, len(ws))
	for _, w := range ws {
		out[w.OwnerID] = w
	}
	if len(out) != len(ids) {
		return nil, domain.ErrWalletNotFound
	}
	return out, nil
}

func (t *gormTx) LockWalletByAccount(accountID string) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := t.db.Clauses(forUpdate).Where("stripe_connect_account = ?", accountID).First(&w).Error; err != nil {
		return nil, notFound(err, domain.ErrWalletNotFound)
	}
	return &w, nil
}

func (t *gormTx) LockProfitableWallets() ([]*domain.Wallet, error) {
	var ws []*domain.Wallet
	if err := t.db.Clauses(forUpdate).Where("monthly_profit_balance > 0").Order("owner_id").Find(&ws).Error; err != nil {
		return nil, fmt.Errorf("lock profitable wallets: %w", err)
	}
	return ws, nil
}

func (t *gormTx) SaveWallets(wallets ...*domain.Wallet) error {
	for _, w := range wallets {
		if err := t.db.Save(w).Error; err != nil {
			return fmt.Errorf("save wallet of %d: %w", w.OwnerID, err)
		}
	}
	return nil
}

func (t *gormTx) CreateTransaction(tr *domain.Transaction) error {
	if err := t.db.Create(tr).Error; err != nil {
		if tr.PaymentRef != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAlreadyCredited
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (t *gormTx) HasPurchased(profileID, episodeID uint) (bool, error) {
	var n int64
	err := t.db.Model(&domain.EpisodePurchase{}).
		Where("profile_id = ? AND episode_id = ?", profileID, episodeID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return n > 0, nil
}

func (t *gormTx) CreateEpisodePurchase(p *domain.EpisodePurchase) error {
	if err := t.db.Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAlreadyPurchased
		}
		return fmt.Errorf("create purchase: %w", err)
	}
	return nil
}

func (t *gormTx) CreatePayoutAttempt(a *domain.PayoutAttempt) error {
	if err := t.db.Create(a).Error; err != nil {
		return fmt.Errorf("create payout attempt: %w", err)
	}
	return nil
}

func (t *gormTx) LockPayoutAttempt(id string) (*domain.PayoutAttempt, error) {
	var a domain.PayoutAttempt
	if err := t.db.Clauses(forUpdate).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, fmt.Errorf("lock payout attempt %s: %w", id, err)
	}
	return &a, nil
}

func (t *gormTx) SavePayoutAttempt(a *domain.PayoutAttempt) error {
	if err := t.db.Save(a).Error; err != nil {
		return fmt.Errorf("save payout attempt %s: %w", a.ID, err)
	}
	return nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

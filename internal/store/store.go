// Package store defines the persistence boundary of the ledger. Every money
// mutation happens inside Store.InTx; wallets are only written after being
// locked through the Tx handle.
package store

import (
	"context"
	"sort"
	"time"

	"coin_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// TransactionFilter narrows ListTransactions
type TransactionFilter struct {
	ProfileID uint                   // Sender or recipient, 0 for all
	Type      domain.TransactionType // Empty for all types
	Since     time.Time              // Zero for no lower bound
	Until     time.Time              // Zero for no upper bound, inclusive
	Limit     int
	Offset    int
}

// Income is an aggregate of coins and their USD cost basis
type Income struct {
	Coins    int64
	USDValue decimal.Decimal
}

// Totals is a ledger-wide snapshot used to check conservation
type Totals struct {
	WalletCoins   int64           `json:"wallet_coins"`   // Balance + monthly profit + payout, all wallets
	WalletUSD     decimal.Decimal `json:"wallet_usd"`     // Matching cost basis
	PendingCoins  int64           `json:"pending_coins"`  // Reserved by PENDING payout attempts
	PendingUSD    decimal.Decimal `json:"pending_usd"`    // Matching cost basis
	DepositCoins  int64           `json:"deposit_coins"`  // Sum of DEPOSIT entries
	DepositUSD    decimal.Decimal `json:"deposit_usd"`    // Matching cost basis
	WithdrawCoins int64           `json:"withdraw_coins"` // Sum of WITHDRAW entries
	WithdrawUSD   decimal.Decimal `json:"withdraw_usd"`   // Matching cost basis
}

// Balanced reports whether every deposited coin is either still held,
// reserved by an in-flight payout or withdrawn.
func (t *Totals) Balanced() bool {
	return t.DepositCoins == t.WalletCoins+t.PendingCoins+t.WithdrawCoins
}

// Store is the read side plus the transaction entry point
type Store interface {
	// InTx runs fn in a single database transaction. Any error rolls back
	// every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateProfile(ctx context.Context, p *domain.Profile) error
	GetProfile(ctx context.Context, id uint) (*domain.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*domain.Profile, error)
	GetEpisode(ctx context.Context, id uint) (*domain.Episode, error)

	// GetWallet returns ErrWalletNotFound if the owner never had a wallet
	GetWallet(ctx context.Context, ownerID uint) (*domain.Wallet, error)
	// EnsureWallet creates an empty wallet for the owner if needed
	EnsureWallet(ctx context.Context, ownerID uint) (*domain.Wallet, error)

	ListTransactions(ctx context.Context, f TransactionFilter) ([]domain.Transaction, int64, error)
	RecentIncome(ctx context.Context, recipientID uint, since time.Time) (Income, error)

	// PayoutCandidates lists wallets with a linked account and at least
	// minCoins in the payout bucket, ordered by owner.
	PayoutCandidates(ctx context.Context, minCoins int64) ([]domain.Wallet, error)
	PendingPayoutAttempts(ctx context.Context) ([]domain.PayoutAttempt, error)
	LedgerTotals(ctx context.Context) (*Totals, error)
}

// Tx is the write handle passed to InTx callbacks
type Tx interface {
	// LockWallets row-locks the wallets of the given owners in ascending
	// owner order, creating missing ones. Duplicate ids are collapsed.
	// Returns ErrProfileNotFound if any owner does not exist.
	LockWallets(ownerIDs ...uint) (map[uint]*domain.Wallet, error)
	LockWalletByAccount(accountID string) (*domain.Wallet, error)
	// LockProfitableWallets locks every wallet with a positive monthly profit
	LockProfitableWallets() ([]*domain.Wallet, error)
	SaveWallets(wallets ...*domain.Wallet) error

	// CreateTransaction returns domain.ErrAlreadyCredited when PaymentRef is
	// already taken
	CreateTransaction(t *domain.Transaction) error

	HasPurchased(profileID, episodeID uint) (bool, error)
	CreateEpisodePurchase(p *domain.EpisodePurchase) error

	CreatePayoutAttempt(a *domain.PayoutAttempt) error
	LockPayoutAttempt(id string) (*domain.PayoutAttempt, error)
	SavePayoutAttempt(a *domain.PayoutAttempt) error
}

// SortedOwners returns the distinct ids in ascending order, the global lock order
func SortedOwners(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coin_ledger/internal/domain"
	"coin_ledger/internal/store"
	"coin_ledger/internal/store/memstore"
)

func seedProfiles(t *testing.T, s *memstore.Store, names ...string) []uint {
	t.Helper()
	ids := make([]uint, 0, len(names))
	for _, name := range names {
		p := &domain.Profile{Username: name, Password: "x"}
		require.NoError(t, s.CreateProfile(context.Background(), p))
		ids = append(ids, p.ID)
	}
	return ids
}

func TestLockWalletsCreatesMissingWallets(t *testing.T) {
	s := memstore.New()
	ids := seedProfiles(t, s, "alice", "bob")
	ctx := context.Background()

	_, err := s.GetWallet(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)

	err = s.InTx(ctx, func(tx store.Tx) error {
		ws, err := tx.LockWallets(ids[1], ids[0], ids[1])
		require.NoError(t, err)
		assert.Len(t, ws, 2, "duplicate ids collapse")
		assert.True(t, ws[ids[0]].USDValue.IsZero())
		return nil
	})
	require.NoError(t, err)

	w, err := s.GetWallet(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], w.OwnerID)
}

func TestLockWalletsUnknownProfile(t *testing.T) {
	s := memstore.New()
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.LockWallets(42)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := memstore.New()
	ids := seedProfiles(t, s, "alice")
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Tx) error {
		ws, err := tx.LockWallets(ids[0])
		require.NoError(t, err)
		w := ws[ids[0]]
		w.Balance = 500
		require.NoError(t, tx.SaveWallets(w))
		require.NoError(t, tx.CreateTransaction(domain.NewTransaction(domain.TransactionDeposit, ids[0], ids[0], 500, decimal.NewFromInt(500))))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetWallet(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrWalletNotFound, "lazy wallet creation is rolled back too")
	txs, total, err := s.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Zero(t, total)
}

func TestFailNextIsOneShot(t *testing.T) {
	s := memstore.New()
	ids := seedProfiles(t, s, "alice")
	ctx := context.Background()
	boom := errors.New("disk full")
	s.FailNext("CreateTransaction", boom)

	write := func() error {
		return s.InTx(ctx, func(tx store.Tx) error {
			return tx.CreateTransaction(domain.NewTransaction(domain.TransactionDeposit, ids[0], ids[0], 1, decimal.NewFromInt(1)))
		})
	}
	assert.ErrorIs(t, write(), boom)
	assert.NoError(t, write())
}

func TestListTransactionsFilters(t *testing.T) {
	s := memstore.New()
	ids := seedProfiles(t, s, "alice", "bob", "carol")
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	now := base
	s.SetClock(func() time.Time { return now })

	record := func(typ domain.TransactionType, from, to uint, coins int64) {
		require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
			return tx.CreateTransaction(domain.NewTransaction(typ, from, to, coins, decimal.NewFromInt(coins)))
		}))
		now = now.Add(time.Hour)
	}
	record(domain.TransactionDeposit, ids[0], ids[0], 1000)
	record(domain.TransactionPurchase, ids[0], ids[1], 100)
	record(domain.TransactionPurchase, ids[0], ids[1], 50)
	record(domain.TransactionPurchase, ids[2], ids[2], 7)

	txs, total, err := s.ListTransactions(ctx, store.TransactionFilter{ProfileID: ids[0]})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, int64(50), txs[0].CoinAmount, "newest first")

	txs, total, err = s.ListTransactions(ctx, store.TransactionFilter{ProfileID: ids[0], Type: domain.TransactionPurchase, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(100), txs[0].CoinAmount)

	income, err := s.RecentIncome(ctx, ids[1], base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(50), income.Coins)
	assert.True(t, income.USDValue.Equal(decimal.NewFromInt(50)))
}

func TestPayoutCandidatesAndTotals(t *testing.T) {
	s := memstore.New()
	ids := seedProfiles(t, s, "alice", "bob", "carol")
	ctx := context.Background()
	acct := "acct_1"

	linked := domain.NewWallet(ids[0])
	linked.StripeConnectAccount = &acct
	linked.PayoutBalance = 400
	linked.PayoutUSDValue = decimal.NewFromInt(380)
	require.NoError(t, s.PutWallet(linked))

	small := domain.NewWallet(ids[1])
	other := "acct_2"
	small.StripeConnectAccount = &other
	small.PayoutBalance = 299
	small.PayoutUSDValue = decimal.NewFromInt(299)
	require.NoError(t, s.PutWallet(small))

	unlinked := domain.NewWallet(ids[2])
	unlinked.PayoutBalance = 1000
	unlinked.PayoutUSDValue = decimal.NewFromInt(1000)
	require.NoError(t, s.PutWallet(unlinked))

	candidates, err := s.PayoutCandidates(ctx, 300)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, ids[0], candidates[0].OwnerID)

	totals, err := s.LedgerTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1699), totals.WalletCoins)
	assert.True(t, totals.WalletUSD.Equal(decimal.NewFromInt(1679)))
}

func TestPayoutAttemptLifecycle(t *testing.T) {
	s := memstore.New()
	ids := seedProfiles(t, s, "alice")
	ctx := context.Background()

	a := &domain.PayoutAttempt{ID: "attempt-1", OwnerID: ids[0], AccountID: "acct", CoinAmount: 10, USDValue: decimal.NewFromInt(10), Status: domain.PayoutPending}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.CreatePayoutAttempt(a) }))

	pending, err := s.PendingPayoutAttempts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	totals, err := s.LedgerTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), totals.PendingCoins)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockPayoutAttempt("attempt-1")
		if err != nil {
			return err
		}
		locked.Status = domain.PayoutSucceeded
		return tx.SavePayoutAttempt(locked)
	}))
	pending, err = s.PendingPayoutAttempts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateProfileRejectsDuplicateUsername(t *testing.T) {
	s := memstore.New()
	seedProfiles(t, s, "alice")
	err := s.CreateProfile(context.Background(), &domain.Profile{Username: "alice"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

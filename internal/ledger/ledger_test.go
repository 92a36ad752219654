package ledger_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coin_ledger/internal/config"
	"coin_ledger/internal/domain"
	"coin_ledger/internal/ledger"
	"coin_ledger/internal/store"
	"coin_ledger/internal/store/memstore"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setupTest returns a ledger over an empty store plus n profiles
func setupTest(t *testing.T, n int) (*ledger.Ledger, *memstore.Store, []uint) {
	t.Helper()
	st := memstore.New()
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		p := &domain.Profile{Username: string(rune('a' + i)), Password: "x"}
		require.NoError(t, st.CreateProfile(context.Background(), p))
		ids = append(ids, p.ID)
	}
	return ledger.New(st, config.DefaultLedger()), st, ids
}

func wallet(t *testing.T, st store.Store, owner uint) *domain.Wallet {
	t.Helper()
	w, err := st.GetWallet(context.Background(), owner)
	require.NoError(t, err)
	return w
}

func TestDepositIntoFreshWallet(t *testing.T) {
	l, st, ids := setupTest(t, 1)

	rec, err := l.Deposit(context.Background(), ids[0], 1000, dec("1000"))
	require.NoError(t, err)

	w := wallet(t, st, ids[0])
	assert.Equal(t, int64(1000), w.Balance)
	assert.True(t, w.USDValue.Equal(dec("1000")))
	assert.Equal(t, domain.TransactionDeposit, rec.Type)
	assert.Equal(t, ids[0], *rec.SenderID)
	assert.Equal(t, ids[0], *rec.RecipientID)
}

func TestDepositPaymentCreditsReferenceOnce(t *testing.T) {
	l, st, ids := setupTest(t, 1)
	ctx := context.Background()

	_, err := l.DepositPayment(ctx, ids[0], 1000, dec("941"), "cs_1")
	require.NoError(t, err)
	_, err = l.DepositPayment(ctx, ids[0], 1000, dec("941"), "cs_1")
	assert.ErrorIs(t, err, domain.ErrAlreadyCredited)

	w := wallet(t, st, ids[0])
	assert.Equal(t, int64(1000), w.Balance)
	assert.True(t, w.USDValue.Equal(dec("941")))

	_, err = l.DepositPayment(ctx, ids[0], 500, dec("470"), "cs_2")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), wallet(t, st, ids[0]).Balance)

	_, err = l.DepositPayment(ctx, ids[0], 500, dec("470"), "")
	assert.Error(t, err)
}

func TestDepositRejectsNegative(t *testing.T) {
	l, st, ids := setupTest(t, 1)
	ctx := context.Background()

	_, err := l.Deposit(ctx, ids[0], -1, dec("1"))
	assert.ErrorIs(t, err, domain.ErrNegativeAmount)
	_, err = l.Deposit(ctx, ids[0], 1, dec("-0.01"))
	assert.ErrorIs(t, err, domain.ErrNegativeAmount)

	_, err = st.GetWallet(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestDepositUnknownProfile(t *testing.T) {
	l, _, _ := setupTest(t, 0)
	_, err := l.Deposit(context.Background(), 99, 10, dec("10"))
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestTransferMovesProportionalUSD(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	a, b := ids[0], ids[1]
	ctx := context.Background()
	_, err := l.Deposit(ctx, a, 1000, dec("900"))
	require.NoError(t, err)

	rec, err := l.Transfer(ctx, b, a, 100)
	require.NoError(t, err)

	wa, wb := wallet(t, st, a), wallet(t, st, b)
	assert.Equal(t, int64(900), wa.Balance)
	assert.True(t, wa.USDValue.Equal(dec("810")), "got %s", wa.USDValue)
	assert.Equal(t, int64(100), wb.MonthlyProfitBalance)
	assert.True(t, wb.MonthlyProfitUSDValue.Equal(dec("90")), "got %s", wb.MonthlyProfitUSDValue)
	assert.Zero(t, wb.Balance, "profit is not spendable")

	assert.Equal(t, domain.TransactionPurchase, rec.Type)
	assert.Equal(t, int64(100), rec.CoinAmount)
	assert.True(t, rec.USDValue.Equal(dec("90")))
}

func TestTransferNotEnoughBalanceLeavesWalletsUnchanged(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	a, b := ids[0], ids[1]
	ctx := context.Background()
	_, err := l.Deposit(ctx, a, 10, dec("10"))
	require.NoError(t, err)
	_, err = l.Deposit(ctx, b, 5, dec("4"))
	require.NoError(t, err)
	beforeA, beforeB := wallet(t, st, a), wallet(t, st, b)

	_, err = l.Transfer(ctx, b, a, 100)
	assert.ErrorIs(t, err, domain.ErrNotEnoughBalance)

	assert.Equal(t, beforeA, wallet(t, st, a))
	assert.Equal(t, beforeB, wallet(t, st, b))
	_, total, err := st.ListTransactions(ctx, store.TransactionFilter{Type: domain.TransactionPurchase})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTransferValidation(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	a, b := ids[0], ids[1]
	ctx := context.Background()

	tests := []struct {
		name      string
		recipient uint
		sender    uint
		amount    int64
		want      error
	}{
		{"negative", b, a, -1, domain.ErrNegativeAmount},
		{"over maximum", b, a, 10_000_001, domain.ErrOverMaximumAmount},
		{"self", a, a, 10, domain.ErrSelfTransfer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Transfer(ctx, tt.recipient, tt.sender, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Rejected before any wallet is touched, so none were created
	_, err := st.GetWallet(ctx, a)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestTransferMaximumIsInclusive(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	a, b := &domain.Profile{Username: "a"}, &domain.Profile{Username: "b"}
	require.NoError(t, st.CreateProfile(ctx, a))
	require.NoError(t, st.CreateProfile(ctx, b))
	cfg := config.DefaultLedger()
	cfg.MaxTransferCoins = 50
	l := ledger.New(st, cfg)

	_, err := l.Deposit(ctx, a.ID, 100, dec("100"))
	require.NoError(t, err)
	_, err = l.Transfer(ctx, b.ID, a.ID, 50)
	assert.NoError(t, err)
	_, err = l.Transfer(ctx, b.ID, a.ID, 51)
	assert.ErrorIs(t, err, domain.ErrOverMaximumAmount)
}

func TestTransferZeroIsNoop(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	ctx := context.Background()

	rec, err := l.Transfer(ctx, ids[1], ids[0], 0)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = st.GetWallet(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	_, total, err := st.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTransferFullBalanceEmptiesSender(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	a, b := ids[0], ids[1]
	ctx := context.Background()
	_, err := l.Deposit(ctx, a, 333, dec("301.7"))
	require.NoError(t, err)

	_, err = l.SendTip(ctx, b, a, 333)
	require.NoError(t, err)

	wa, wb := wallet(t, st, a), wallet(t, st, b)
	assert.Zero(t, wa.Balance)
	assert.True(t, wa.USDValue.IsZero(), "got %s", wa.USDValue)
	assert.Equal(t, int64(333), wb.MonthlyProfitBalance)
	assert.True(t, wb.MonthlyProfitUSDValue.Equal(dec("301.7")))
}

func TestRepeatedSmallTransfersDrainCleanly(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	a, b := ids[0], ids[1]
	ctx := context.Background()
	_, err := l.Deposit(ctx, a, 1000, dec("941"))
	require.NoError(t, err)

	for i := 0; i < 333; i++ {
		_, err := l.SendTip(ctx, b, a, 3)
		require.NoError(t, err)
	}
	_, err = l.SendTip(ctx, b, a, 1)
	require.NoError(t, err)

	wa, wb := wallet(t, st, a), wallet(t, st, b)
	assert.Zero(t, wa.Balance)
	assert.True(t, wa.USDValue.IsZero(), "got %s", wa.USDValue)
	assert.False(t, wa.USDValue.IsNegative())
	assert.True(t, wb.MonthlyProfitUSDValue.Equal(dec("941")), "cost basis is conserved, got %s", wb.MonthlyProfitUSDValue)
}

func TestPurchaseEpisode(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	creator, reader := ids[0], ids[1]
	ctx := context.Background()
	_, err := l.Deposit(ctx, reader, 500, dec("470"))
	require.NoError(t, err)
	ep := &domain.Episode{ID: 7, OwnerID: creator, Status: domain.EpisodePublic, IsPremium: true, Price: 100}

	purchase, err := l.PurchaseEpisode(ctx, reader, ep)
	require.NoError(t, err)
	assert.Equal(t, ep.ID, purchase.EpisodeID)
	assert.Equal(t, reader, purchase.ProfileID)

	assert.Equal(t, int64(400), wallet(t, st, reader).Balance)
	assert.Equal(t, int64(100), wallet(t, st, creator).MonthlyProfitBalance)
	assert.Len(t, st.Purchases(), 1)

	_, err = l.PurchaseEpisode(ctx, reader, ep)
	assert.ErrorIs(t, err, domain.ErrAlreadyPurchased)
	assert.Equal(t, int64(400), wallet(t, st, reader).Balance, "second purchase charges nothing")
}

func TestPurchaseEpisodeEligibility(t *testing.T) {
	l, _, ids := setupTest(t, 2)
	ctx := context.Background()

	tests := []struct {
		name string
		ep   domain.Episode
	}{
		{"public free", domain.Episode{Status: domain.EpisodePublic, IsPremium: false, Price: 10}},
		{"prerelease unpriced", domain.Episode{Status: domain.EpisodePreRelease, Price: 0}},
		{"draft", domain.Episode{Status: domain.EpisodeDraft, IsPremium: true, Price: 10}},
		{"removed", domain.Episode{Status: domain.EpisodeRemoved, IsPremium: true, Price: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := tt.ep
			ep.OwnerID = ids[0]
			_, err := l.PurchaseEpisode(ctx, ids[1], &ep)
			assert.ErrorIs(t, err, domain.ErrEpisodeNotPurchasable)
		})
	}
}

func TestPurchaseEpisodeIsAtomic(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	creator, reader := ids[0], ids[1]
	ctx := context.Background()
	_, err := l.Deposit(ctx, reader, 500, dec("500"))
	require.NoError(t, err)
	_, err = st.EnsureWallet(ctx, creator)
	require.NoError(t, err)
	ep := &domain.Episode{ID: 3, OwnerID: creator, Status: domain.EpisodePreRelease, Price: 200}

	boom := errors.New("constraint violation")
	st.FailNext("CreateEpisodePurchase", boom)
	_, err = l.PurchaseEpisode(ctx, reader, ep)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(500), wallet(t, st, reader).Balance, "coins stay with the buyer")
	assert.Zero(t, wallet(t, st, creator).MonthlyProfitBalance)
	assert.Empty(t, st.Purchases())
	_, total, err := st.ListTransactions(ctx, store.TransactionFilter{Type: domain.TransactionPurchase})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestFailedPurchaseDoesNotCreateSellerWallet(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	creator, reader := ids[0], ids[1]
	ctx := context.Background()
	_, err := l.Deposit(ctx, reader, 500, dec("500"))
	require.NoError(t, err)
	ep := &domain.Episode{ID: 4, OwnerID: creator, Status: domain.EpisodePreRelease, Price: 200}

	st.FailNext("CreateTransaction", errors.New("disk full"))
	_, err = l.PurchaseEpisode(ctx, reader, ep)
	require.Error(t, err)

	_, err = st.GetWallet(ctx, creator)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound, "lazily created wallet is rolled back too")
	assert.Equal(t, int64(500), wallet(t, st, reader).Balance)
}

func TestPurchaseEpisodeNotEnoughBalance(t *testing.T) {
	l, st, ids := setupTest(t, 2)
	ctx := context.Background()
	_, err := l.Deposit(ctx, ids[1], 10, dec("10"))
	require.NoError(t, err)
	ep := &domain.Episode{ID: 1, OwnerID: ids[0], Status: domain.EpisodePublic, IsPremium: true, Price: 11}

	_, err = l.PurchaseEpisode(ctx, ids[1], ep)
	assert.ErrorIs(t, err, domain.ErrNotEnoughBalance)
	assert.Empty(t, st.Purchases())
}

func TestConcurrentTransfersConserveCoins(t *testing.T) {
	l, st, ids := setupTest(t, 5)
	ctx := context.Background()
	for _, id := range ids {
		_, err := l.Deposit(ctx, id, 1000, dec("950"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				from, to := ids[r.Intn(len(ids))], ids[r.Intn(len(ids))]
				_, err := l.SendTip(ctx, to, from, int64(r.Intn(40)))
				if err != nil && !errors.Is(err, domain.ErrNotEnoughBalance) && !errors.Is(err, domain.ErrSelfTransfer) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(int64(g))
	}
	wg.Wait()

	totals, err := st.LedgerTotals(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Balanced())
	assert.Equal(t, int64(5000), totals.WalletCoins)
	assert.True(t, totals.WalletUSD.Equal(dec("4750")), "cost basis is conserved, got %s", totals.WalletUSD)

	for _, id := range ids {
		w := wallet(t, st, id)
		assert.GreaterOrEqual(t, w.Balance, int64(0))
		assert.False(t, w.USDValue.IsNegative())
	}
}

func TestConnectAccountLifecycle(t *testing.T) {
	l, st, ids := setupTest(t, 1)
	ctx := context.Background()

	got, err := l.LinkConnectAccount(ctx, ids[0], "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", got)

	got, err = l.LinkConnectAccount(ctx, ids[0], "acct_2")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", got, "an existing account is kept")

	require.NoError(t, l.RemoveConnectAccount(ctx, "acct_1"))
	assert.False(t, wallet(t, st, ids[0]).HasConnectAccount())
	assert.NoError(t, l.RemoveConnectAccount(ctx, "acct_unknown"))

	_, err = l.LinkConnectAccount(ctx, ids[0], "acct_3")
	require.NoError(t, err)
	require.NoError(t, l.UnlinkConnectAccount(ctx, ids[0]))
	assert.False(t, wallet(t, st, ids[0]).HasConnectAccount())
}

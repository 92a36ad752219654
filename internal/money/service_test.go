package money

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"coin_ledger/internal/config"
	"coin_ledger/internal/domain"
	"coin_ledger/internal/gateway"
	"coin_ledger/internal/ledger"
	"coin_ledger/internal/store"
	"coin_ledger/internal/store/memstore"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_fake"

type fixture struct {
	svc     *Service
	store   *memstore.Store
	gateway *gateway.Fake
	reader  *domain.Profile
	creator *domain.Profile
}

func setupTest(t *testing.T, rdb *redis.Client) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	reader := &domain.Profile{Username: "reader", DisplayName: "Reader", Email: "reader@example.com"}
	creator := &domain.Profile{Username: "creator", DisplayName: "Creator", Email: "creator@example.com"}
	require.NoError(t, st.CreateProfile(ctx, reader))
	require.NoError(t, st.CreateProfile(ctx, creator))

	cfg := config.DefaultLedger()
	gw := gateway.NewFake(cfg.MinCheckoutCoins, webhookSecret)
	return &fixture{
		svc:     NewService(st, ledger.New(st, cfg), gw, rdb),
		store:   st,
		gateway: gw,
		reader:  reader,
		creator: creator,
	}
}

func (f *fixture) deliver(t *testing.T, ev gateway.WebhookEvent) error {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return f.svc.HandleWebhook(context.Background(), payload, webhookSecret)
}

func paidCheckout(profileID uint, session, pi string) gateway.WebhookEvent {
	return gateway.WebhookEvent{
		ID:   "evt_" + session,
		Type: gateway.EventCheckoutCompleted,
		Checkout: &gateway.CheckoutCompleted{
			SessionID:       session,
			PaymentStatus:   gateway.PaymentStatusPaid,
			PaymentIntentID: pi,
			ProfileID:       profileID,
		},
	}
}

func TestCreateDepositSession(t *testing.T) {
	f := setupTest(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateDepositSession(ctx, f.reader.ID, 299, "/series/1")
	assert.ErrorIs(t, err, domain.ErrBelowMinimumPurchase)

	s, err := f.svc.CreateDepositSession(ctx, f.reader.ID, 300, "/series/1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.URL)
	assert.Len(t, f.gateway.Sessions(), 1)

	w, err := f.store.GetWallet(ctx, f.reader.ID)
	require.NoError(t, err)
	assert.Zero(t, w.Balance)

	_, err = f.svc.CreateDepositSession(ctx, 999, 500, "/")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestWebhookCreditsPaidCheckout(t *testing.T) {
	f := setupTest(t, nil)
	f.gateway.SetSettlement("pi_1", 1000, 941)

	require.NoError(t, f.deliver(t, paidCheckout(f.reader.ID, "cs_1", "pi_1")))

	w, err := f.store.GetWallet(context.Background(), f.reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)
	assert.True(t, decimal.NewFromInt(941).Equal(w.USDValue))
}

func TestWebhookIgnoresUnpaidCheckout(t *testing.T) {
	f := setupTest(t, nil)
	ev := paidCheckout(f.reader.ID, "cs_1", "pi_1")
	ev.Checkout.PaymentStatus = "unpaid"

	require.NoError(t, f.deliver(t, ev))
	_, err := f.store.GetWallet(context.Background(), f.reader.ID)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestWebhookSettlementFailureIsRetryable(t *testing.T) {
	f := setupTest(t, nil)

	err := f.deliver(t, paidCheckout(f.reader.ID, "cs_1", "pi_missing"))
	require.Error(t, err)

	f.gateway.SetSettlement("pi_missing", 500, 470)
	require.NoError(t, f.deliver(t, paidCheckout(f.reader.ID, "cs_1", "pi_missing")))
	w, err := f.store.GetWallet(context.Background(), f.reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
}

func TestWebhookRedeliveryCreditsOnce(t *testing.T) {
	f := setupTest(t, nil)
	ctx := context.Background()
	f.gateway.SetSettlement("pi_1", 1000, 941)
	ev := paidCheckout(f.reader.ID, "cs_1", "pi_1")

	require.NoError(t, f.deliver(t, ev))
	require.NoError(t, f.deliver(t, ev))

	w, err := f.store.GetWallet(ctx, f.reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)
	_, total, err := f.store.ListTransactions(ctx, store.TransactionFilter{Type: domain.TransactionDeposit})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestWebhookRetryAfterFailedCommitCredits(t *testing.T) {
	f := setupTest(t, nil)
	f.gateway.SetSettlement("pi_1", 1000, 941)
	ev := paidCheckout(f.reader.ID, "cs_1", "pi_1")

	f.store.FailNext("CreateTransaction", errors.New("connection reset"))
	require.Error(t, f.deliver(t, ev))

	require.NoError(t, f.deliver(t, ev))
	w, err := f.store.GetWallet(context.Background(), f.reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := setupTest(t, nil)
	payload, err := json.Marshal(paidCheckout(f.reader.ID, "cs_1", "pi_1"))
	require.NoError(t, err)

	err = f.svc.HandleWebhook(context.Background(), payload, "forged")
	assert.ErrorIs(t, err, gateway.ErrInvalidWebhook)
}

func TestWebhookRejectsPaidCheckoutWithoutProfile(t *testing.T) {
	f := setupTest(t, nil)
	err := f.deliver(t, paidCheckout(0, "cs_1", "pi_1"))
	assert.ErrorIs(t, err, gateway.ErrInvalidWebhook)
}

func TestWebhookDeauthorizationClearsAccount(t *testing.T) {
	f := setupTest(t, nil)
	ctx := context.Background()

	_, err := f.svc.SetupPayoutAccount(ctx, f.creator.ID, "https://app/refresh", "https://app/return")
	require.NoError(t, err)
	w, err := f.store.GetWallet(ctx, f.creator.ID)
	require.NoError(t, err)
	require.True(t, w.HasConnectAccount())

	require.NoError(t, f.deliver(t, gateway.WebhookEvent{
		ID:      "evt_2",
		Type:    gateway.EventAccountDeauthorized,
		Account: *w.StripeConnectAccount,
	}))
	w, err = f.store.GetWallet(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.False(t, w.HasConnectAccount())

	// Unknown accounts are acknowledged
	assert.NoError(t, f.deliver(t, gateway.WebhookEvent{ID: "evt_3", Type: gateway.EventAccountDeauthorized, Account: "acct_gone"}))
	assert.NoError(t, f.deliver(t, gateway.WebhookEvent{ID: "evt_4", Type: "customer.created"}))
}

func TestSetupPayoutAccountCreatesOnce(t *testing.T) {
	f := setupTest(t, nil)
	ctx := context.Background()

	first, err := f.svc.SetupPayoutAccount(ctx, f.creator.ID, "https://app/refresh", "https://app/return")
	require.NoError(t, err)
	second, err := f.svc.SetupPayoutAccount(ctx, f.creator.ID, "https://app/refresh", "https://app/return")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, f.svc.UnlinkPayoutAccount(ctx, f.creator.ID))
	third, err := f.svc.SetupPayoutAccount(ctx, f.creator.ID, "https://app/refresh", "https://app/return")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestWalletOverview(t *testing.T) {
	f := setupTest(t, nil)
	ctx := context.Background()

	overview, cached, err := f.svc.Wallet(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.False(t, overview.PayoutEnabled)
	assert.Nil(t, overview.StripeAccountEmail)
	assert.Equal(t, domain.PayoutStatusRegular, overview.CreatorStatus)

	_, err = f.svc.SetupPayoutAccount(ctx, f.creator.ID, "https://app/refresh", "https://app/return")
	require.NoError(t, err)
	w, err := f.store.GetWallet(ctx, f.creator.ID)
	require.NoError(t, err)
	f.gateway.SetAccount(*w.StripeConnectAccount, gateway.AccountStatus{ChargesEnabled: true, Email: "payouts@example.com"})
	require.NoError(t, f.store.SetPayoutStatus(f.creator.ID, domain.PayoutStatusHighValue))

	overview, _, err = f.svc.Wallet(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.True(t, overview.PayoutEnabled)
	require.NotNil(t, overview.StripeAccountEmail)
	assert.Equal(t, "payouts@example.com", *overview.StripeAccountEmail)
	assert.Equal(t, domain.PayoutStatusHighValue, overview.CreatorStatus)
}

func TestTipAndPurchase(t *testing.T) {
	f := setupTest(t, nil)
	ctx := context.Background()
	f.gateway.SetSettlement("pi_1", 1000, 1000)
	require.NoError(t, f.deliver(t, paidCheckout(f.reader.ID, "cs_1", "pi_1")))

	episode := &domain.Episode{OwnerID: f.creator.ID, Title: "Ep 1", Status: domain.EpisodePublic, IsPremium: true, Price: 100}
	f.store.AddEpisode(episode)

	require.NoError(t, f.svc.PurchaseEpisode(ctx, f.reader.ID, episode.ID))
	assert.ErrorIs(t, f.svc.PurchaseEpisode(ctx, f.reader.ID, episode.ID), domain.ErrAlreadyPurchased)
	assert.ErrorIs(t, f.svc.PurchaseEpisode(ctx, f.reader.ID, 404), domain.ErrEpisodeNotFound)

	require.NoError(t, f.svc.Tip(ctx, f.reader.ID, TipTarget{EpisodeID: &episode.ID}, 50))
	require.NoError(t, f.svc.Tip(ctx, f.reader.ID, TipTarget{ProfileID: &f.creator.ID}, 25))
	assert.ErrorIs(t, f.svc.Tip(ctx, f.reader.ID, TipTarget{}, 25), ErrNoTipTarget)
	assert.ErrorIs(t, f.svc.Tip(ctx, f.reader.ID, TipTarget{ProfileID: &f.reader.ID}, 25), domain.ErrSelfTransfer)

	w, err := f.store.GetWallet(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(175), w.MonthlyProfitBalance)

	w, err = f.store.GetWallet(ctx, f.reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(825), w.Balance)
}

func TestTransactionsAndIncome(t *testing.T) {
	f := setupTest(t, nil)
	ctx := context.Background()
	f.gateway.SetSettlement("pi_1", 1000, 900)
	require.NoError(t, f.deliver(t, paidCheckout(f.reader.ID, "cs_1", "pi_1")))
	require.NoError(t, f.svc.Tip(ctx, f.reader.ID, TipTarget{ProfileID: &f.creator.ID}, 100))
	require.NoError(t, f.svc.Tip(ctx, f.reader.ID, TipTarget{ProfileID: &f.creator.ID}, 200))

	page, err := f.svc.Transactions(ctx, f.reader.ID, "", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Count)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(200), page.Items[0].CoinAmount)
	assert.Equal(t, "Reader", page.Items[0].SenderDisplayName)
	assert.Equal(t, "Creator", page.Items[0].RecipientDisplayName)

	deposits, err := f.svc.Transactions(ctx, f.reader.ID, domain.TransactionDeposit, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deposits.Count)

	_, err = f.svc.Transactions(ctx, f.reader.ID, "REFUND", 10, 0)
	assert.ErrorIs(t, err, ErrUnknownTransactionType)

	income, err := f.svc.RecentIncome(ctx, f.creator.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(300), income.Amount)
	assert.True(t, decimal.NewFromInt(270).Equal(income.USDValue))

	f.svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	income, err = f.svc.RecentIncome(ctx, f.creator.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, income.Amount)

	_, err = f.svc.RecentIncome(ctx, f.creator.ID, -1)
	assert.ErrorIs(t, err, domain.ErrNegativeAmount)

	all, err := f.svc.ListAll(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Count)

	totals, err := f.svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Balanced())
}

// TestWebhookDedupWithRedis needs a disposable Redis, e.g.
// LEDGER_TEST_REDIS=127.0.0.1:6379
func TestWebhookDedupWithRedis(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS")
	if addr == "" {
		t.Skip("LEDGER_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	require.NoError(t, rdb.FlushDB(ctx).Err())

	f := setupTest(t, rdb)
	f.gateway.SetSettlement("pi_1", 1000, 941)
	ev := paidCheckout(f.reader.ID, "cs_dedup", "pi_1")

	require.NoError(t, f.deliver(t, ev))
	require.NoError(t, f.deliver(t, ev))

	w, err := f.store.GetWallet(ctx, f.reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.Balance)

	// Only a committed credit is remembered
	err = f.deliver(t, paidCheckout(f.reader.ID, "cs_retry", "pi_missing"))
	require.Error(t, err)
	exists, err := rdb.Exists(ctx, "money:checkout:cs_retry").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

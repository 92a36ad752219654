package money

import (
	"context"
	"fmt"
	"time"

	"coin_ledger/internal/domain"
	"coin_ledger/internal/store"
	"coin_ledger/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WalletOverview is what a profile sees of its wallet
type WalletOverview struct {
	Balance               int64               `json:"balance"`
	USDValue              decimal.Decimal     `json:"usd_value"`
	PayoutEnabled         bool                `json:"payout_enabled"` // Connected account can receive transfers
	CreatorStatus         domain.PayoutStatus `json:"creator_status"`
	StripeAccountEmail    *string             `json:"stripe_account_email"`
	MonthlyProfitBalance  int64               `json:"monthly_profit_balance"`
	MonthlyProfitUSDValue decimal.Decimal     `json:"monthly_profit_usd_value"`
	PayoutBalance         int64               `json:"payout_balance"`
	PayoutUSDValue        decimal.Decimal     `json:"payout_usd_value"`
}

// Wallet returns the overview of profileID's wallet, creating the wallet if
// needed. The boolean reports a cache hit.
func (s *Service) Wallet(ctx context.Context, profileID uint) (*WalletOverview, bool, error) {
	key := utils.WalletCacheKey(profileID)
	var cached WalletOverview
	if hit, err := utils.GetCache(ctx, s.rdb, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, false, err
	}
	w, err := s.store.EnsureWallet(ctx, profileID)
	if err != nil {
		return nil, false, fmt.Errorf("ensure wallet: %w", err)
	}

	out := &WalletOverview{
		Balance:               w.Balance,
		USDValue:              w.USDValue,
		CreatorStatus:         profile.PayoutStatus,
		MonthlyProfitBalance:  w.MonthlyProfitBalance,
		MonthlyProfitUSDValue: w.MonthlyProfitUSDValue,
		PayoutBalance:         w.PayoutBalance,
		PayoutUSDValue:        w.PayoutUSDValue,
	}
	if w.HasConnectAccount() {
		status, err := s.gateway.GetAccountStatus(ctx, *w.StripeConnectAccount)
		if err != nil {
			return nil, false, err
		}
		out.PayoutEnabled = status.ChargesEnabled
		if status.Email != "" {
			email := status.Email
			out.StripeAccountEmail = &email
		}
	}

	if err := utils.SetCache(ctx, s.rdb, key, out, utils.WalletCacheTTL); err != nil {
		s.log.WithError(err).WithField("profile_id", profileID).Warn("Wallet cache write failed")
	}
	return out, false, nil
}

// TransactionView is one history entry with both parties' display names
type TransactionView struct {
	ID                   uint                   `json:"id"`
	Type                 domain.TransactionType `json:"type"`
	CoinAmount           int64                  `json:"coin_amount"`
	USDValue             decimal.Decimal        `json:"usd_value"`
	SenderID             *uint                  `json:"sender_id"`
	SenderDisplayName    string                 `json:"sender_display_name"`
	RecipientID          *uint                  `json:"recipient_id"`
	RecipientDisplayName string                 `json:"recipient_display_name"`
	CreatedAt            time.Time              `json:"created_at"`
}

// TransactionPage is a limit/offset page of history
type TransactionPage struct {
	Items []TransactionView `json:"items"`
	Count int64             `json:"count"` // Matching entries across all pages
}

// Transactions lists the entries profileID sent or received, newest first.
// An empty typ lists every type.
func (s *Service) Transactions(ctx context.Context, profileID uint, typ domain.TransactionType, limit, offset int) (*TransactionPage, error) {
	if typ != "" && !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransactionType, typ)
	}
	key := utils.TransactionsCacheKey(profileID)
	field := fmt.Sprintf("type=%s:limit=%d:offset=%d", typ, limit, offset)
	var cached TransactionPage
	if hit, err := utils.GetCacheField(ctx, s.rdb, key, field, &cached); err == nil && hit {
		return &cached, nil
	}

	txs, total, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		ProfileID: profileID,
		Type:      typ,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}
	page := &TransactionPage{Items: make([]TransactionView, len(txs)), Count: total}
	for i, t := range txs {
		page.Items[i] = view(t)
	}

	if err := utils.SetCacheField(ctx, s.rdb, key, field, page, utils.HistoryCacheTTL); err != nil {
		s.log.WithError(err).WithField("profile_id", profileID).Warn("History cache write failed")
	}
	return page, nil
}

// ListAll is the admin view across every profile
func (s *Service) ListAll(ctx context.Context, f store.TransactionFilter) (*TransactionPage, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransactionType, f.Type)
	}
	txs, total, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, err
	}
	page := &TransactionPage{Items: make([]TransactionView, len(txs)), Count: total}
	for i, t := range txs {
		page.Items[i] = view(t)
	}
	return page, nil
}

func view(t domain.Transaction) TransactionView {
	v := TransactionView{
		ID:          t.ID,
		Type:        t.Type,
		CoinAmount:  t.CoinAmount,
		USDValue:    t.USDValue,
		SenderID:    t.SenderID,
		RecipientID: t.RecipientID,
		CreatedAt:   t.CreatedAt,
	}
	if t.Sender != nil {
		v.SenderDisplayName = t.Sender.DisplayName
	}
	if t.Recipient != nil {
		v.RecipientDisplayName = t.Recipient.DisplayName
	}
	return v
}

// Income is the PURCHASE income of a creator over a window
type Income struct {
	Amount   int64           `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// RecentIncome sums coins profileID received from purchases and tips in the
// last days days, counted back from now
func (s *Service) RecentIncome(ctx context.Context, profileID uint, days int) (*Income, error) {
	if days < 0 {
		return nil, domain.ErrNegativeAmount
	}
	since := s.now().AddDate(0, 0, -days)
	in, err := s.store.RecentIncome(ctx, profileID, since)
	if err != nil {
		return nil, err
	}
	return &Income{Amount: in.Coins, USDValue: in.USDValue}, nil
}

// Audit reports whether every deposited coin is accounted for
func (s *Service) Audit(ctx context.Context) (*store.Totals, error) {
	totals, err := s.store.LedgerTotals(ctx)
	if err != nil {
		return nil, err
	}
	if !totals.Balanced() {
		s.log.WithFields(logrus.Fields{
			"deposit_coins":  totals.DepositCoins,
			"wallet_coins":   totals.WalletCoins,
			"pending_coins":  totals.PendingCoins,
			"withdraw_coins": totals.WithdrawCoins,
		}).Error("Ledger out of balance")
	}
	return totals, nil
}

package domain

import "github.com/shopspring/decimal"

// Wallet Model
//
// Coin fields are integer cents (1 coin = 1 cent). The *USDValue fields hold the
// cents actually paid in (net of processor fees) that back the coins, so they
// drift below the coin count as coins change hands.
type Wallet struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`                                   // Primary key
	OwnerID               uint            `gorm:"uniqueIndex;not null" json:"owner_id"`                   // Foreign key to Profile
	Balance               int64           `gorm:"not null;default:0" json:"balance"`                      // Spendable coins
	USDValue              decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"usd_value"` // Cost basis of Balance
	StripeConnectAccount  *string         `gorm:"size:500;index" json:"-"`                                // External payout account
	MonthlyProfitBalance  int64           `gorm:"not null;default:0;index" json:"monthly_profit_balance"` // Coins earned this cycle
	MonthlyProfitUSDValue decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"monthly_profit_usd_value"`
	PayoutBalance         int64           `gorm:"not null;default:0;index" json:"payout_balance"` // Coins awaiting disbursement
	PayoutUSDValue        decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"payout_usd_value"`
}

// NewWallet returns an empty wallet for the given owner
func NewWallet(ownerID uint) *Wallet {
	return &Wallet{
		OwnerID:               ownerID,
		USDValue:              decimal.Zero,
		MonthlyProfitUSDValue: decimal.Zero,
		PayoutUSDValue:        decimal.Zero,
	}
}

// HasConnectAccount reports whether a payout account is linked
func (w *Wallet) HasConnectAccount() bool {
	return w.StripeConnectAccount != nil && *w.StripeConnectAccount != ""
}

// TotalCoins is every coin held by the wallet across its three buckets
func (w *Wallet) TotalCoins() int64 {
	return w.Balance + w.MonthlyProfitBalance + w.PayoutBalance
}

// Clone returns a copy that shares no pointers with w
func (w *Wallet) Clone() *Wallet {
	c := *w
	if w.StripeConnectAccount != nil {
		acct := *w.StripeConnectAccount
		c.StripeConnectAccount = &acct
	}
	return &c
}

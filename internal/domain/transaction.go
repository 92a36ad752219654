package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionDeposit  TransactionType = "DEPOSIT"  // Coins bought through the payment processor
	TransactionPurchase TransactionType = "PURCHASE" // Coins moved buyer -> creator (episodes and tips)
	TransactionWithdraw TransactionType = "WITHDRAW" // Payout to a connected account
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionPurchase, TransactionWithdraw:
		return true
	}
	return false
}

// Transaction Model, append-only
type Transaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`                                         // Primary key
	Type        TransactionType `gorm:"size:50;not null;index" json:"type"`                           // DEPOSIT, PURCHASE or WITHDRAW
	SenderID    *uint           `gorm:"index" json:"sender_id"`                                       // Paying profile, cleared on deletion
	RecipientID *uint           `gorm:"index" json:"recipient_id"`                                    // Receiving profile, cleared on deletion
	Sender      *Profile        `gorm:"foreignKey:SenderID;constraint:OnDelete:SET NULL" json:"-"`    // Sender relation
	Recipient   *Profile        `gorm:"foreignKey:RecipientID;constraint:OnDelete:SET NULL" json:"-"` // Recipient relation
	CoinAmount  int64           `gorm:"not null" json:"coin_amount"`                                  // Coins moved
	USDValue    decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"usd_value"`                 // Cost basis moved
	PaymentRef  *string         `gorm:"size:255;uniqueIndex" json:"-"`                                // Checkout session credited by a DEPOSIT
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`                       // Immutable creation time
}

// NewTransaction builds a ledger entry between two profiles
func NewTransaction(typ TransactionType, senderID, recipientID uint, coins int64, usd decimal.Decimal) *Transaction {
	return &Transaction{
		Type:        typ,
		SenderID:    &senderID,
		RecipientID: &recipientID,
		CoinAmount:  coins,
		USDValue:    usd,
	}
}

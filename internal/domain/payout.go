package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutAttemptStatus tracks a disbursement across the gateway call
type PayoutAttemptStatus string

const (
	PayoutPending   PayoutAttemptStatus = "PENDING"   // Local balance reserved, gateway outcome unknown
	PayoutSucceeded PayoutAttemptStatus = "SUCCEEDED" // Gateway accepted the transfer
	PayoutFailed    PayoutAttemptStatus = "FAILED"    // Gateway rejected it, balance restored
)

// PayoutAttempt is the intent record written before money leaves the platform.
// Its ID doubles as the gateway idempotency key.
type PayoutAttempt struct {
	ID          string              `gorm:"primaryKey;size:36"`
	OwnerID     uint                `gorm:"not null;index"`
	AccountID   string              `gorm:"size:500;not null"`
	CoinAmount  int64               `gorm:"not null"`
	USDValue    decimal.Decimal     `gorm:"type:numeric(24,8);not null"`
	PlatformFee int64               `gorm:"not null"`
	AmountCents int64               `gorm:"not null"` // Sent to the connected account
	Status      PayoutAttemptStatus `gorm:"size:20;not null;index"`
	Error       string              `gorm:"size:1000"`
	CreatedAt   time.Time           `gorm:"autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime"`
}

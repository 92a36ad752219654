package payout

import (
	"coin_ledger/internal/config"
	"coin_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// PlatformFee returns the platform's cut of usd cents for a creator in the
// given tier, rounded to whole cents.
func PlatformFee(usd decimal.Decimal, status domain.PayoutStatus, cfg config.Ledger) (int64, error) {
	if !usd.IsPositive() {
		return 0, domain.ErrNonPositivePayout
	}
	rate := cfg.FeeRateDefault
	if status == domain.PayoutStatusHighValue {
		rate = cfg.FeeRateHighValue
	}
	return domain.RoundCents(usd.Mul(decimal.NewFromFloat(rate)), domain.FeeRounding), nil
}

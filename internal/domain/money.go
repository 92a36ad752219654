package domain

import "github.com/shopspring/decimal"

// CentsPerCoin is fixed. Changing it revalues every wallet.
const CentsPerCoin = 1

// USDScale is the number of fractional cent digits persisted for USD values
const USDScale = 8

// RoundingMode names how fees are rounded to whole cents
type RoundingMode int

const (
	RoundHalfUp   RoundingMode = iota // 0.5 rounds away from zero
	RoundHalfEven                     // banker's rounding
)

// FeeRounding is the rounding used for platform fees
const FeeRounding = RoundHalfUp

// RoundCents rounds v to whole cents using mode
func RoundCents(v decimal.Decimal, mode RoundingMode) int64 {
	if mode == RoundHalfEven {
		return v.RoundBank(0).IntPart()
	}
	return v.Round(0).IntPart()
}

// ProportionalUSD returns the cost basis that travels with coins taken out of
// a bucket holding balance coins backed by usd. Taking the whole bucket
// returns usd exactly so the bucket can reach zero without residue.
func ProportionalUSD(usd decimal.Decimal, balance, coins int64) decimal.Decimal {
	if coins <= 0 || balance <= 0 {
		return decimal.Zero
	}
	if coins >= balance {
		return usd
	}
	v := usd.Mul(decimal.NewFromInt(coins)).Div(decimal.NewFromInt(balance)).Truncate(USDScale)
	if v.GreaterThan(usd) {
		return usd
	}
	return v
}

// Package money is the single conversion boundary between the major-unit
// decimal amounts used everywhere in this codebase and the integer minor
// units (cents, kobo) that provider wire formats expect. Conversion happens
// exactly once, at the adapter edge, so rounding can never accumulate across
// retries.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major-unit amount to integer minor units, rounding
// half-up once. 100.00 -> 10000.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts integer minor units back to a major-unit amount.
// 10000 -> 100.00.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

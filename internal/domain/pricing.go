package domain

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// DiscountedPrice returns price × (1 − percentage/100) rounded to cents,
// half away from zero (2.345 → 2.35, -2.345 → -2.35).
func DiscountedPrice(price, percentage Amount) Amount {
	factor := one.Sub(percentage.Decimal.Div(hundred))
	return NewAmount(price.Decimal.Mul(factor).Round(2))
}

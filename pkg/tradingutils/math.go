package tradingutils

import (
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// RoundPrice rounds a price half-to-even to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int32) decimal.Decimal {
	return price.RoundBank(priceDecimals)
}

// RoundQuantity rounds a quantity half-to-even to the specified decimals
func RoundQuantity(qty decimal.Decimal, qtyDecimals int32) decimal.Decimal {
	return qty.RoundBank(qtyDecimals)
}

// OffsetPrice moves an anchor by a signed fractional offset: anchor * (1 + offset)
func OffsetPrice(anchor, offset decimal.Decimal) decimal.Decimal {
	return anchor.Mul(decimal.NewFromInt(1).Add(offset))
}

// DivRoundHalfEven divides num by den and rounds the exact quotient half-to-even
// to the given number of decimal places. den must not be zero.
func DivRoundHalfEven(num, den decimal.Decimal, places int32) decimal.Decimal {
	q, r := num.QuoRem(den, places)
	if r.IsZero() {
		return q
	}

	ulp := decimal.New(1, -places)
	cmp := r.Abs().Mul(two).Cmp(den.Abs().Mul(ulp))
	if cmp < 0 {
		return q
	}
	if cmp == 0 && q.Shift(places).Mod(two).IsZero() {
		return q
	}

	// QuoRem truncates toward zero, so step away from zero in the quotient's direction
	if num.Sign()*den.Sign() < 0 {
		return q.Sub(ulp)
	}
	return q.Add(ulp)
}

// WeightedAverage returns totalCost / totalQty rounded half-to-even, or zero when flat
func WeightedAverage(totalCost, totalQty decimal.Decimal, priceDecimals int32) decimal.Decimal {
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return DivRoundHalfEven(totalCost, totalQty, priceDecimals)
}

// Package pricing computes unit prices and the checkout discount stack.
//
// All amounts are whole won. Rates are applied with shopspring/decimal and
// always floored so that the charged amount never exceeds what the customer
// was shown and every rounding step favours the merchant.
package pricing

import (
	"github.com/shopspring/decimal"
)

const (
	// MembershipRatePercent is the Ddcare membership discount.
	MembershipRatePercent = 30
	// FreeShippingThreshold is the post-discount amount from which shipping is free.
	FreeShippingThreshold = 30000
	// StandardShippingFee is charged below FreeShippingThreshold.
	StandardShippingFee = 2500
	// MinPointRedemption is the smallest point amount that may be redeemed.
	MinPointRedemption = 1000
	// EarnRatePercent is the share of the payable base credited as points.
	EarnRatePercent = 1
)

var (
	hundred          = decimal.NewFromInt(100)
	membershipFactor = decimal.NewFromInt(100 - MembershipRatePercent).Div(hundred)
)

// ResolveUnitPrice returns the price charged for one unit.
//
// The sale price replaces the base price when present, the option adjustment
// is added, and the membership discount is applied last with floor rounding.
// The result is never negative.
func ResolveUnitPrice(basePrice int64, salePrice *int64, adjustment int64, discounted bool) int64 {
	price := basePrice
	if salePrice != nil {
		price = *salePrice
	}
	price += adjustment
	if price < 0 {
		price = 0
	}
	if !discounted {
		return price
	}
	return decimal.NewFromInt(price).Mul(membershipFactor).Floor().IntPart()
}

// ShippingFee returns the fee for the given post-discount amount. An empty
// selection ships for free.
func ShippingFee(afterDiscount int64, lines int) int64 {
	if lines == 0 || afterDiscount >= FreeShippingThreshold {
		return 0
	}
	return StandardShippingFee
}

// EarnedPoints returns the points credited when a purchase is confirmed.
func EarnedPoints(afterDiscount int64) int64 {
	if afterDiscount <= 0 {
		return 0
	}
	return afterDiscount * EarnRatePercent / 100
}

package pricing

import (
	"github.com/go-faster/errors"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
)

// ErrNegativePoints is returned when a negative point redemption is requested.
var ErrNegativePoints = errors.New("requested points must not be negative")

// Line is one priced cart or order line.
type Line struct {
	BasePrice        int64
	SalePrice        *int64
	OptionAdjustment int64
	Quantity         int
}

// Input holds everything the discount stack needs.
type Input struct {
	Lines []Line
	// Discounted is true when the buyer's membership discount is in effect.
	Discounted      bool
	Coupon          *coupon.Coupon
	RequestedPoints int64
	PointBalance    int64
}

// Breakdown is the result of evaluating the discount stack.
type Breakdown struct {
	// Subtotal is the sum of sale-price line totals before membership discount.
	Subtotal int64
	// AdjustedSubtotal is the sum of membership-discounted line totals.
	AdjustedSubtotal   int64
	MembershipDiscount int64
	CouponDiscount     int64
	CouponApplied      bool
	UsedPoints         int64
	AfterDiscount      int64
	ShippingFee        int64
	FinalAmount        int64
	EarnedPoints       int64
}

// TotalDiscount is the membership plus coupon discount, as stored on orders.
func (b Breakdown) TotalDiscount() int64 {
	return b.MembershipDiscount + b.CouponDiscount
}

// Evaluate applies the membership discount, then the coupon, then point
// redemption, in that fixed order, and derives shipping and the final amount.
func Evaluate(in Input) (Breakdown, error) {
	if in.RequestedPoints < 0 {
		return Breakdown{}, ErrNegativePoints
	}

	var b Breakdown
	for _, l := range in.Lines {
		qty := int64(l.Quantity)
		b.Subtotal += ResolveUnitPrice(l.BasePrice, l.SalePrice, l.OptionAdjustment, false) * qty
		// Per line, so every option adjustment gets the same floor rounding.
		b.AdjustedSubtotal += ResolveUnitPrice(l.BasePrice, l.SalePrice, l.OptionAdjustment, in.Discounted) * qty
	}
	b.MembershipDiscount = b.Subtotal - b.AdjustedSubtotal

	if in.Coupon != nil {
		b.CouponDiscount, b.CouponApplied = in.Coupon.Discount(b.AdjustedSubtotal)
	}

	b.UsedPoints = clampPoints(in.RequestedPoints, in.PointBalance, b.AdjustedSubtotal-b.CouponDiscount)

	b.AfterDiscount = b.AdjustedSubtotal - b.CouponDiscount - b.UsedPoints
	b.ShippingFee = ShippingFee(b.AfterDiscount, len(in.Lines))
	b.FinalAmount = max(b.AfterDiscount+b.ShippingFee, 0)
	b.EarnedPoints = EarnedPoints(b.AfterDiscount)
	return b, nil
}

// clampPoints bounds the redemption by the balance and the remaining base.
// Anything under MinPointRedemption is dropped entirely.
func clampPoints(requested, balance, remaining int64) int64 {
	used := min(requested, balance, remaining)
	if used < MinPointRedemption {
		return 0
	}
	return used
}

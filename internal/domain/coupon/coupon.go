package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order base, floored to whole won.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a flat amount off the order base.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when the user holds no such coupon grant.
	ErrNotFound = errors.New("coupon not found")
	// ErrAlreadyUsed is returned when a one-time grant was already redeemed.
	ErrAlreadyUsed = errors.New("coupon already used")
	// ErrExpired is returned when a coupon is outside its valid time window.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrInactive is returned when the coupon was disabled by an operator.
	ErrInactive = errors.New("coupon inactive")
)

var hundred = decimal.NewFromInt(100)

// Coupon defines a discount and its eligibility constraints.
type Coupon struct {
	ID             int64
	Name           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount int64
	// MaxDiscountAmount caps percentage discounts when set.
	MaxDiscountAmount *int64
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	// UsageLimit of 0 means unlimited.
	UsageLimit int
	UsedCount  int
	Active     bool
}

// UserCoupon is a one-time grant of a coupon to a specific user.
type UserCoupon struct {
	ID      int64
	UserID  int64
	Coupon  Coupon
	Used    bool
	UsedAt  *time.Time
	OrderID *int64
}

// Discount returns the amount this coupon takes off base and whether it
// applies at all. A base below MinOrderAmount yields (0, false). The result
// never exceeds base.
func (c *Coupon) Discount(base int64) (int64, bool) {
	if base <= 0 || base < c.MinOrderAmount {
		return 0, false
	}

	var amount int64
	switch c.DiscountType {
	case DiscountPercentage:
		amount = decimal.NewFromInt(base).Mul(c.Value).Div(hundred).Floor().IntPart()
		if c.MaxDiscountAmount != nil && amount > *c.MaxDiscountAmount {
			amount = *c.MaxDiscountAmount
		}
	case DiscountFixed:
		amount = c.Value.Floor().IntPart()
	default:
		return 0, false
	}

	if amount < 0 {
		amount = 0
	}
	if amount > base {
		amount = base
	}
	return amount, true
}

// Store provides coupon grant lookups and redemption bookkeeping. Calls are
// expected to run inside the caller's transaction.
type Store interface {
	// GetUserCoupon returns the grant and locks it for the rest of the
	// transaction. Returns ErrNotFound when userID does not own the grant.
	GetUserCoupon(ctx context.Context, userID, userCouponID int64) (*UserCoupon, error)
	// MarkUsed flips an unused grant to used and links it to orderID.
	// Returns ErrAlreadyUsed when the grant was redeemed concurrently.
	MarkUsed(ctx context.Context, userCouponID, orderID int64) error
	// ReleaseByOrder reverts the grant redeemed by orderID, if any, and
	// reports whether one was found.
	ReleaseByOrder(ctx context.Context, orderID int64) (bool, error)
}

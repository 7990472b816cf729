package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator looks up a user's coupon grant and checks that it can be
// redeemed right now.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate fetches the grant through store and checks activity, one-time
// use, the validity window and the global usage limit. The minimum order
// amount is not checked here: an ineligible base simply yields no discount.
func (v *Validator) Validate(ctx context.Context, store Store, userID, userCouponID int64) (*UserCoupon, error) {
	uc, err := store.GetUserCoupon(ctx, userID, userCouponID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := Check(uc, v.now()); err != nil {
		return nil, err
	}
	return uc, nil
}

// Check reports why uc cannot be redeemed at now, or nil.
func Check(uc *UserCoupon, now time.Time) error {
	c := uc.Coupon
	switch {
	case uc.Used:
		return ErrAlreadyUsed
	case !c.Active:
		return ErrInactive
	case c.ValidFrom != nil && now.Before(*c.ValidFrom):
		return ErrExpired
	case c.ValidUntil != nil && now.After(*c.ValidUntil):
		return ErrExpired
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return ErrUsageLimitReached
	}
	return nil
}

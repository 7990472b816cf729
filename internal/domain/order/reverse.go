package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/point"
)

// Reverse undoes the side effects of creating o: stock, redeemed points and
// the coupon grant. It must run in the same transaction as the status
// transition that guards it, so it happens at most once per order.
func Reverse(ctx context.Context, tx Tx, o *Order, reason point.Reason) error {
	if err := inventory.Release(ctx, tx.Inventory(), o.Lines()); err != nil {
		return errors.Wrap(err, "release inventory")
	}

	if o.UsedPoint > 0 {
		orderID := o.ID
		if _, err := point.Apply(ctx, tx.Points(), o.UserID, o.UsedPoint, reason, &orderID); err != nil {
			return errors.Wrap(err, "restore points")
		}
	}

	if o.UserCouponID != nil {
		if _, err := tx.Coupons().ReleaseByOrder(ctx, o.ID); err != nil {
			return errors.Wrap(err, "release coupon")
		}
	}
	return nil
}

package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
)

const (
	getUserCouponSQL = `SELECT uc.id, uc.user_id, uc.used, uc.used_at, uc.order_id,
			c.id, c.name, c.discount_type, c.discount_value, c.min_order_amount,
			c.max_discount_amount, c.valid_from, c.valid_until, c.usage_limit, c.used_count, c.active
		FROM user_coupons uc
		JOIN coupons c ON c.id = uc.coupon_id
		WHERE uc.id = $1 AND uc.user_id = $2
		FOR UPDATE OF uc`

	markCouponUsedSQL = `UPDATE user_coupons
		SET used = TRUE, used_at = now(), order_id = $2
		WHERE id = $1 AND used = FALSE
		RETURNING coupon_id`

	bumpCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`

	releaseCouponSQL = `UPDATE user_coupons
		SET used = FALSE, used_at = NULL, order_id = NULL
		WHERE order_id = $1 AND used = TRUE
		RETURNING coupon_id`

	dropCouponUsageSQL = `UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE id = $1`

	grantCouponSQL = `INSERT INTO user_coupons (user_id, coupon_id)
		SELECT u.id, $1 FROM users u WHERE u.id = ANY($2::bigint[])
		ON CONFLICT (user_id, coupon_id) DO NOTHING`
)

var _ coupon.Store = (*CouponStore)(nil)

// CouponStore implements coupon.Store.
type CouponStore struct {
	q DBTX
}

// NewCouponStore returns a CouponStore that uses q.
func NewCouponStore(q DBTX) *CouponStore {
	return &CouponStore{q: q}
}

// GetUserCoupon returns the user's grant and locks it.
func (s *CouponStore) GetUserCoupon(ctx context.Context, userID, userCouponID int64) (*coupon.UserCoupon, error) {
	var (
		uc  coupon.UserCoupon
		c   = &uc.Coupon
		typ string
	)
	err := s.q.QueryRow(ctx, getUserCouponSQL, userCouponID, userID).Scan(
		&uc.ID, &uc.UserID, &uc.Used, &uc.UsedAt, &uc.OrderID,
		&c.ID, &c.Name, &typ, &c.Value, &c.MinOrderAmount,
		&c.MaxDiscountAmount, &c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsedCount, &c.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user coupon %d", userCouponID)
	}
	c.DiscountType = coupon.DiscountType(typ)
	return &uc, nil
}

// MarkUsed redeems the grant for orderID and counts the use on the coupon.
func (s *CouponStore) MarkUsed(ctx context.Context, userCouponID, orderID int64) error {
	var couponID int64
	err := s.q.QueryRow(ctx, markCouponUsedSQL, userCouponID, orderID).Scan(&couponID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrAlreadyUsed
		}
		return errors.Wrapf(err, "mark coupon %d used", userCouponID)
	}
	if _, err := s.q.Exec(ctx, bumpCouponUsageSQL, couponID); err != nil {
		return errors.Wrap(err, "count coupon use")
	}
	return nil
}

// ReleaseByOrder returns the grant redeemed by orderID, if any.
func (s *CouponStore) ReleaseByOrder(ctx context.Context, orderID int64) (bool, error) {
	var couponID int64
	err := s.q.QueryRow(ctx, releaseCouponSQL, orderID).Scan(&couponID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, errors.Wrapf(err, "release coupon of order %d", orderID)
	}
	if _, err := s.q.Exec(ctx, dropCouponUsageSQL, couponID); err != nil {
		return false, errors.Wrap(err, "uncount coupon use")
	}
	return true, nil
}

// Grant gives couponID to every existing user in userIDs, skipping existing
// grants and unknown users, and returns how many grants were created.
func (s *CouponStore) Grant(ctx context.Context, couponID int64, userIDs []int64) (int64, error) {
	tag, err := s.q.Exec(ctx, grantCouponSQL, couponID, userIDs)
	if err != nil {
		return 0, errors.Wrapf(err, "grant coupon %d", couponID)
	}
	return tag.RowsAffected(), nil
}

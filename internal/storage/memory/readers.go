package memory

import (
	"context"
	"slices"
	"time"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/point"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

// Products returns the catalog reader.
func (s *Store) Products() product.Repository { return productRepo{s} }

// Memberships returns the membership repository.
func (s *Store) Memberships() membership.Repository { return membershipRepo{s} }

type productRepo struct{ s *Store }

func (r productRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	r.s.with(func(st *state) {
		for _, id := range ids {
			if p, ok := st.products[id]; ok && !slices.ContainsFunc(out, func(q product.Product) bool { return q.ID == id }) {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

func (r productRepo) GetOptionsByIDs(_ context.Context, ids []int64) ([]product.Option, error) {
	var out []product.Option
	r.s.with(func(st *state) {
		for _, id := range ids {
			if o, ok := st.options[id]; ok {
				out = append(out, o)
			}
		}
	})
	return out, nil
}

type membershipRepo struct{ s *Store }

func (r membershipRepo) Get(_ context.Context, userID int64) (membership.Membership, error) {
	var m membership.Membership
	r.s.with(func(st *state) {
		var ok bool
		if m, ok = st.memberships[userID]; !ok {
			m = membership.Membership{UserID: userID, Status: membership.StatusNone}
		}
	})
	return m, nil
}

func (r membershipRepo) Transition(_ context.Context, userID int64, from []membership.Status, to membership.Status, expiresAt *time.Time) (bool, error) {
	var changed bool
	r.s.with(func(st *state) {
		m, ok := st.memberships[userID]
		if !ok {
			m = membership.Membership{UserID: userID, Status: membership.StatusNone}
		}
		if !slices.Contains(from, m.Status) {
			return
		}
		m.Status = to
		if expiresAt != nil {
			m.ExpiresAt = expiresAt
		}
		st.memberships[userID] = m
		changed = true
	})
	return changed, nil
}

// Coupons returns a coupon.Store where every call is its own unit of work.
func (s *Store) Coupons() coupon.Store { return autoCoupons{s} }

// Points returns a point.Store where every call is its own unit of work.
func (s *Store) Points() point.Store { return autoPoints{s} }

type autoCoupons struct{ s *Store }

func (a autoCoupons) GetUserCoupon(ctx context.Context, userID, userCouponID int64) (uc *coupon.UserCoupon, err error) {
	err = a.s.Run(ctx, func(ctx context.Context, tx *Tx) error {
		uc, err = tx.Coupons().GetUserCoupon(ctx, userID, userCouponID)
		return err
	})
	return uc, err
}

func (a autoCoupons) MarkUsed(ctx context.Context, userCouponID, orderID int64) error {
	return a.s.Run(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.Coupons().MarkUsed(ctx, userCouponID, orderID)
	})
}

func (a autoCoupons) ReleaseByOrder(ctx context.Context, orderID int64) (released bool, err error) {
	err = a.s.Run(ctx, func(ctx context.Context, tx *Tx) error {
		released, err = tx.Coupons().ReleaseByOrder(ctx, orderID)
		return err
	})
	return released, err
}

type autoPoints struct{ s *Store }

func (a autoPoints) Balance(ctx context.Context, userID int64) (balance int64, err error) {
	err = a.s.Run(ctx, func(ctx context.Context, tx *Tx) error {
		balance, err = tx.Points().Balance(ctx, userID)
		return err
	})
	return balance, err
}

func (a autoPoints) Append(ctx context.Context, e point.Entry) (out point.Entry, err error) {
	err = a.s.Run(ctx, func(ctx context.Context, tx *Tx) error {
		out, err = tx.Points().Append(ctx, e)
		return err
	})
	return out, err
}

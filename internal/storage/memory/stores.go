package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/point"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

type inventoryStore struct{ tx *Tx }

func (s inventoryStore) LockProduct(_ context.Context, id int64) (*product.Product, error) {
	p, ok := s.tx.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s inventoryStore) LockOption(_ context.Context, productID, optionID int64) (*product.Option, error) {
	o, ok := s.tx.st.options[optionID]
	if !ok || o.ProductID != productID {
		return nil, product.ErrNotFound
	}
	return &o, nil
}

func (s inventoryStore) DecrementStock(_ context.Context, productID int64, optionID *int64, qty int) (bool, error) {
	st := s.tx.st
	p, ok := st.products[productID]
	if !ok {
		return false, nil
	}
	if optionID != nil {
		o, ok := st.options[*optionID]
		if !ok || o.Stock < qty {
			return false, nil
		}
		o.Stock -= qty
		st.options[o.ID] = o
	} else {
		if p.Stock < qty {
			return false, nil
		}
		p.Stock -= qty
	}
	p.SaleCount += qty
	st.products[p.ID] = p
	return true, nil
}

func (s inventoryStore) IncrementStock(_ context.Context, productID int64, optionID *int64, qty int) error {
	st := s.tx.st
	p, ok := st.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	if optionID != nil {
		o, ok := st.options[*optionID]
		if !ok {
			return product.ErrNotFound
		}
		o.Stock += qty
		st.options[o.ID] = o
	} else {
		p.Stock += qty
	}
	p.SaleCount = max(p.SaleCount-qty, 0)
	st.products[p.ID] = p
	return nil
}

type couponStore struct{ tx *Tx }

func (s couponStore) GetUserCoupon(_ context.Context, userID, userCouponID int64) (*coupon.UserCoupon, error) {
	uc, ok := s.tx.st.userCoupons[userCouponID]
	if !ok || uc.UserID != userID {
		return nil, coupon.ErrNotFound
	}
	return s.tx.st.userCoupon(uc), nil
}

func (s couponStore) MarkUsed(_ context.Context, userCouponID, orderID int64) error {
	st := s.tx.st
	uc, ok := st.userCoupons[userCouponID]
	if !ok {
		return coupon.ErrNotFound
	}
	if uc.Used {
		return coupon.ErrAlreadyUsed
	}
	now := s.tx.now()
	uc.Used, uc.UsedAt, uc.OrderID = true, &now, &orderID
	st.userCoupons[uc.ID] = uc

	c := st.coupons[uc.CouponID]
	c.UsedCount++
	st.coupons[c.ID] = c
	return nil
}

func (s couponStore) ReleaseByOrder(_ context.Context, orderID int64) (bool, error) {
	st := s.tx.st
	for id, uc := range st.userCoupons {
		if !uc.Used || uc.OrderID == nil || *uc.OrderID != orderID {
			continue
		}
		uc.Used, uc.UsedAt, uc.OrderID = false, nil, nil
		st.userCoupons[id] = uc

		c := st.coupons[uc.CouponID]
		c.UsedCount = max(c.UsedCount-1, 0)
		st.coupons[c.ID] = c
		return true, nil
	}
	return false, nil
}

func (st *state) userCoupon(uc userCoupon) *coupon.UserCoupon {
	return &coupon.UserCoupon{
		ID:      uc.ID,
		UserID:  uc.UserID,
		Coupon:  st.coupons[uc.CouponID],
		Used:    uc.Used,
		UsedAt:  uc.UsedAt,
		OrderID: uc.OrderID,
	}
}

type pointStore struct{ tx *Tx }

func (s pointStore) Balance(_ context.Context, userID int64) (int64, error) {
	return s.tx.st.balances[userID], nil
}

func (s pointStore) Append(_ context.Context, e point.Entry) (point.Entry, error) {
	st := s.tx.st
	e.ID = st.nextID()
	e.CreatedAt = s.tx.now()
	st.balances[e.UserID] = e.BalanceAfter
	st.ledger = append(st.ledger, e)
	return e, nil
}

type cartStore struct{ tx *Tx }

func (s cartStore) RemoveProducts(_ context.Context, userID int64, productIDs []int64) error {
	st := s.tx.st
	st.carts = slices.DeleteFunc(st.carts, func(it CartItem) bool {
		return it.UserID == userID && slices.Contains(productIDs, it.ProductID)
	})
	return nil
}

type orderRepo struct{ tx *Tx }

func (r orderRepo) Insert(_ context.Context, o *order.Order) (bool, error) {
	st := r.tx.st
	for _, existing := range st.orders {
		if existing.Number == o.Number {
			return false, nil
		}
	}
	now := r.tx.now()
	o.ID = st.nextID()
	o.CreatedAt, o.UpdatedAt = now, now
	items := make([]order.Item, len(o.Items))
	for i, it := range o.Items {
		it.ID = st.nextID()
		it.OrderID = o.ID
		items[i] = it
	}
	o.Items = items
	st.orders[o.ID] = *o
	return true, nil
}

func (r orderRepo) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	for _, o := range r.tx.st.orders {
		if o.Number == number {
			o.Items = slices.Clone(o.Items)
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (r orderRepo) LockByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.GetByNumber(ctx, number)
}

func (r orderRepo) ListByUser(_ context.Context, userID int64, limit int) ([]order.Order, error) {
	var out []order.Order
	for _, o := range r.tx.st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		return cmp.Compare(b.ID, a.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r orderRepo) Transition(_ context.Context, orderID int64, from []order.Status, to order.Status, reason string) (bool, error) {
	st := r.tx.st
	o, ok := st.orders[orderID]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	o.Status = to
	if reason != "" {
		o.CancelReason = reason
	}
	o.UpdatedAt = r.tx.now()
	st.orders[o.ID] = o
	return true, nil
}

type paymentRepo struct{ tx *Tx }

func (r paymentRepo) Insert(_ context.Context, p *payment.Payment) error {
	st := r.tx.st
	p.ID = st.nextID()
	p.CreatedAt = r.tx.now()
	st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) GetByOrder(_ context.Context, orderID int64) (*payment.Payment, error) {
	var latest *payment.Payment
	for _, p := range r.tx.st.payments {
		if p.OrderID == orderID && (latest == nil || p.ID > latest.ID) {
			latest = &p
		}
	}
	if latest == nil {
		return nil, payment.ErrNotFound
	}
	return latest, nil
}

func (r paymentRepo) SetStatus(_ context.Context, paymentID int64, from, to payment.Status, approvedAt *time.Time) (bool, error) {
	st := r.tx.st
	p, ok := st.payments[paymentID]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	if approvedAt != nil {
		p.ApprovedAt = approvedAt
	}
	st.payments[p.ID] = p
	return true, nil
}

func (r paymentRepo) InsertRefund(_ context.Context, ref *payment.Refund) error {
	st := r.tx.st
	ref.ID = st.nextID()
	ref.CreatedAt = r.tx.now()
	st.refunds = append(st.refunds, *ref)
	return nil
}

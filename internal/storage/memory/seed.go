package memory

import (
	"cmp"
	"slices"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/point"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.with(func(st *state) { st.products[p.ID] = p })
}

// PutOption inserts or replaces a product option.
func (s *Store) PutOption(o product.Option) {
	s.with(func(st *state) { st.options[o.ID] = o })
}

// SetBalance sets a user's point balance without a ledger entry.
func (s *Store) SetBalance(userID, balance int64) {
	s.with(func(st *state) { st.balances[userID] = balance })
}

// PutCoupon inserts or replaces a coupon definition.
func (s *Store) PutCoupon(c coupon.Coupon) {
	s.with(func(st *state) { st.coupons[c.ID] = c })
}

// GrantCoupon gives couponID to userID and returns the grant ID.
func (s *Store) GrantCoupon(userID, couponID int64) int64 {
	var id int64
	s.with(func(st *state) {
		id = st.nextID()
		st.userCoupons[id] = userCoupon{ID: id, UserID: userID, CouponID: couponID}
	})
	return id
}

// PutCartItem adds a cart row.
func (s *Store) PutCartItem(it CartItem) {
	s.with(func(st *state) { st.carts = append(st.carts, it) })
}

// PutMembership inserts or replaces a membership.
func (s *Store) PutMembership(m membership.Membership) {
	s.with(func(st *state) { st.memberships[m.UserID] = m })
}

// Product returns the stored product.
func (s *Store) Product(id int64) (p product.Product) {
	s.with(func(st *state) { p = st.products[id] })
	return p
}

// Option returns the stored option.
func (s *Store) Option(id int64) (o product.Option) {
	s.with(func(st *state) { o = st.options[id] })
	return o
}

// Balance returns a user's point balance.
func (s *Store) Balance(userID int64) (b int64) {
	s.with(func(st *state) { b = st.balances[userID] })
	return b
}

// Ledger returns a user's ledger entries in insertion order.
func (s *Store) Ledger(userID int64) []point.Entry {
	var out []point.Entry
	s.with(func(st *state) {
		for _, e := range st.ledger {
			if e.UserID == userID {
				out = append(out, e)
			}
		}
	})
	return out
}

// UserCoupon returns a grant with its coupon.
func (s *Store) UserCoupon(id int64) (uc *coupon.UserCoupon) {
	s.with(func(st *state) {
		if row, ok := st.userCoupons[id]; ok {
			uc = st.userCoupon(row)
		}
	})
	return uc
}

// Cart returns a user's cart rows.
func (s *Store) Cart(userID int64) []CartItem {
	var out []CartItem
	s.with(func(st *state) {
		out = slices.DeleteFunc(slices.Clone(st.carts), func(it CartItem) bool { return it.UserID != userID })
	})
	return out
}

// Orders returns every stored order.
func (s *Store) Orders() []order.Order {
	var out []order.Order
	s.with(func(st *state) {
		for _, o := range st.orders {
			out = append(out, o)
		}
	})
	return out
}

// Refunds returns every stored refund.
func (s *Store) Refunds() (out []payment.Refund) {
	s.with(func(st *state) { out = slices.Clone(st.refunds) })
	return out
}

// Payments returns every stored payment ordered by id.
func (s *Store) Payments() []payment.Payment {
	var out []payment.Payment
	s.with(func(st *state) {
		for _, p := range st.payments {
			out = append(out, p)
		}
	})
	slices.SortFunc(out, func(a, b payment.Payment) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

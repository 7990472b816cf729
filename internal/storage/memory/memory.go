// Package memory is an in-process implementation of the shop stores with
// transactional semantics: every unit of work runs against a copy of the
// state that replaces the original only when the work succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/point"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

// CartItem is a cart row.
type CartItem struct {
	UserID    int64
	ProductID int64
	OptionID  *int64
	Quantity  int
}

type userCoupon struct {
	ID       int64
	UserID   int64
	CouponID int64
	Used     bool
	UsedAt   *time.Time
	OrderID  *int64
}

type state struct {
	seq         int64
	products    map[int64]product.Product
	options     map[int64]product.Option
	balances    map[int64]int64
	ledger      []point.Entry
	coupons     map[int64]coupon.Coupon
	userCoupons map[int64]userCoupon
	orders      map[int64]order.Order
	payments    map[int64]payment.Payment
	refunds     []payment.Refund
	carts       []CartItem
	memberships map[int64]membership.Membership
}

func newState() *state {
	return &state{
		products:    map[int64]product.Product{},
		options:     map[int64]product.Option{},
		balances:    map[int64]int64{},
		coupons:     map[int64]coupon.Coupon{},
		userCoupons: map[int64]userCoupon{},
		orders:      map[int64]order.Order{},
		payments:    map[int64]payment.Payment{},
		memberships: map[int64]membership.Membership{},
	}
}

// clone copies the containers. Stored values are replaced, never mutated
// in place, so sharing their pointer fields is safe.
func (s *state) clone() *state {
	return &state{
		seq:         s.seq,
		products:    maps.Clone(s.products),
		options:     maps.Clone(s.options),
		balances:    maps.Clone(s.balances),
		ledger:      slices.Clone(s.ledger),
		coupons:     maps.Clone(s.coupons),
		userCoupons: maps.Clone(s.userCoupons),
		orders:      maps.Clone(s.orders),
		payments:    maps.Clone(s.payments),
		refunds:     slices.Clone(s.refunds),
		carts:       slices.Clone(s.carts),
		memberships: maps.Clone(s.memberships),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store holds the whole shop state behind one mutex. Units of work are
// serialised, which stands in for row locks.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// Run executes fn against a copy of the state and keeps the copy only when
// fn returns nil.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	if err := fn(ctx, &Tx{st: next, now: s.now}); err != nil {
		return err
	}
	s.st = next
	return nil
}

func (s *Store) with(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// OrderTransactor adapts the Store to order.Transactor.
func (s *Store) OrderTransactor() order.Transactor { return orderTransactor{s} }

// PaymentTransactor adapts the Store to payment.Transactor.
func (s *Store) PaymentTransactor() payment.Transactor { return paymentTransactor{s} }

type orderTransactor struct{ s *Store }

func (t orderTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return t.s.Run(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type paymentTransactor struct{ s *Store }

func (t paymentTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	return t.s.Run(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// Tx is a unit of work over a private copy of the state.
type Tx struct {
	st  *state
	now func() time.Time
}

var (
	_ order.Tx   = (*Tx)(nil)
	_ payment.Tx = (*Tx)(nil)
)

func (tx *Tx) Orders() order.Repository { return orderRepo{tx} }
func (tx *Tx) Inventory() inventory.Store { return inventoryStore{tx} }
func (tx *Tx) Coupons() coupon.Store { return couponStore{tx} }
func (tx *Tx) Points() point.Store { return pointStore{tx} }
func (tx *Tx) Carts() order.CartStore { return cartStore{tx} }
func (tx *Tx) Payments() payment.Repository { return paymentRepo{tx} }

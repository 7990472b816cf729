package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/point"
	"github.com/xenking/oralcare-shop/internal/domain/pricing"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

const (
	maxNumberAttempts = 5
	listLimit         = 50
)

// ErrEmptyItems is returned for a checkout without lines.
var ErrEmptyItems = errors.New("items required")

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// MissingFieldError indicates a required recipient field is blank.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return e.Field + " is required"
}

// Buyer identifies who is checking out.
type Buyer struct {
	UserID int64
	// Discounted is the resolved membership discount flag.
	Discounted bool
}

// CheckoutRequest is shared by Preview and Create.
type CheckoutRequest struct {
	Buyer        Buyer
	Items        []inventory.Request
	UserCouponID *int64
	UsePoint     int64
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	CheckoutRequest
	Recipient Recipient
}

// Quote is a priced checkout that has not been persisted.
type Quote struct {
	Items     []inventory.Snapshot
	Breakdown pricing.Breakdown
}

// Service owns the order aggregate: checkout, reads and lifecycle moves.
type Service struct {
	tx        Transactor
	products  product.Repository
	coupons   coupon.Store
	points    point.Store
	validator *coupon.Validator
	publisher Publisher
	now       func() time.Time

	tracer  trace.Tracer
	created metric.Int64Counter
}

// NewService creates an order Service. products, coupons and points are
// read outside transactions by Preview.
func NewService(
	tx Transactor,
	products product.Repository,
	coupons coupon.Store,
	points point.Store,
	opts ...Option,
) (*Service, error) {
	o := newOptions(opts)
	meter := o.meterProvider.Meter(instrumentationName)

	created, err := meter.Int64Counter("shop.orders.created",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}

	return &Service{
		tx:        tx,
		products:  products,
		coupons:   coupons,
		points:    points,
		validator: coupon.NewValidator(),
		publisher: o.publisher,
		now:       o.now,
		tracer:    o.tracerProvider.Tracer(instrumentationName),
		created:   created,
	}, nil
}

func (s *Service) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "order."+name)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateItems(items []inventory.Request) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	return nil
}

func validateRecipient(r Recipient) error {
	for _, f := range []struct{ name, value string }{
		{"recipientName", r.Name},
		{"recipientPhone", r.Phone},
		{"zipcode", r.Zipcode},
		{"address", r.Address},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}

func lines(snaps []inventory.Snapshot) []pricing.Line {
	out := make([]pricing.Line, len(snaps))
	for i, s := range snaps {
		out[i] = s.Line()
	}
	return out
}

// Preview prices a checkout against current catalog rows, without reserving
// stock or redeeming anything.
func (s *Service) Preview(ctx context.Context, req CheckoutRequest) (_ *Quote, rerr error) {
	ctx, span := s.start(ctx, "Preview")
	defer func() { finish(span, rerr) }()

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	productIDs := make([]int64, 0, len(req.Items))
	var optionIDs []int64
	for _, it := range req.Items {
		productIDs = append(productIDs, it.ProductID)
		if it.OptionID != nil {
			optionIDs = append(optionIDs, *it.OptionID)
		}
	}
	products, err := s.products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	var options []product.Option
	if len(optionIDs) > 0 {
		if options, err = s.products.GetOptionsByIDs(ctx, optionIDs); err != nil {
			return nil, errors.Wrap(err, "get options")
		}
	}

	snaps, err := inventory.Quote(products, options, req.Items, req.Buyer.Discounted)
	if err != nil {
		return nil, err
	}

	in := pricing.Input{
		Lines:           lines(snaps),
		Discounted:      req.Buyer.Discounted,
		RequestedPoints: req.UsePoint,
	}
	if req.UserCouponID != nil {
		uc, err := s.validator.Validate(ctx, s.coupons, req.Buyer.UserID, *req.UserCouponID)
		if err != nil {
			return nil, err
		}
		in.Coupon = &uc.Coupon
	}
	if req.UsePoint > 0 {
		if in.PointBalance, err = s.points.Balance(ctx, req.Buyer.UserID); err != nil {
			return nil, errors.Wrap(err, "point balance")
		}
	}

	b, err := pricing.Evaluate(in)
	if err != nil {
		return nil, err
	}
	return &Quote{Items: snaps, Breakdown: b}, nil
}

// Create reserves stock, applies the discount stack, persists the order in
// pending status and redeems the coupon and points, all in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.start(ctx, "Create")
	defer func() { finish(span, rerr) }()

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if err := validateRecipient(req.Recipient); err != nil {
		return nil, err
	}
	if req.UsePoint < 0 {
		return nil, pricing.ErrNegativePoints
	}

	var o *Order
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		snaps, err := inventory.Reserve(ctx, tx.Inventory(), req.Items, req.Buyer.Discounted)
		if err != nil {
			return err
		}

		in := pricing.Input{
			Lines:           lines(snaps),
			Discounted:      req.Buyer.Discounted,
			RequestedPoints: req.UsePoint,
		}
		if req.UserCouponID != nil {
			uc, err := s.validator.Validate(ctx, tx.Coupons(), req.Buyer.UserID, *req.UserCouponID)
			if err != nil {
				return err
			}
			in.Coupon = &uc.Coupon
		}
		if req.UsePoint > 0 {
			if in.PointBalance, err = tx.Points().Balance(ctx, req.Buyer.UserID); err != nil {
				return errors.Wrap(err, "point balance")
			}
		}

		b, err := pricing.Evaluate(in)
		if err != nil {
			return err
		}

		o = &Order{
			UserID:             req.Buyer.UserID,
			Recipient:          req.Recipient,
			TotalAmount:        b.Subtotal,
			DiscountAmount:     b.TotalDiscount(),
			MembershipDiscount: b.MembershipDiscount,
			CouponDiscount:     b.CouponDiscount,
			ShippingFee:        b.ShippingFee,
			UsedPoint:          b.UsedPoints,
			EarnedPoint:        b.EarnedPoints,
			Status:             StatusPending,
			Items:              make([]Item, len(snaps)),
		}
		if b.CouponApplied {
			o.UserCouponID = req.UserCouponID
		}
		for i, snap := range snaps {
			o.Items[i] = Item{Snapshot: snap}
		}

		if err := s.insert(ctx, tx.Orders(), o); err != nil {
			return err
		}

		if o.UserCouponID != nil {
			if err := tx.Coupons().MarkUsed(ctx, *o.UserCouponID, o.ID); err != nil {
				return err
			}
		}
		if o.UsedPoint > 0 {
			orderID := o.ID
			if _, err := point.Apply(ctx, tx.Points(), o.UserID, -o.UsedPoint, point.ReasonOrderUse, &orderID); err != nil {
				return errors.Wrap(err, "redeem points")
			}
		}

		productIDs := make([]int64, len(o.Items))
		for i, it := range o.Items {
			productIDs[i] = it.ProductID
		}
		if err := tx.Carts().RemoveProducts(ctx, o.UserID, productIDs); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.String("order", o.Number),
		zap.Int64("user_id", o.UserID),
		zap.Int64("amount", o.PayableAmount()),
	)
	Emit(ctx, s.publisher, NewEvent(EventCreated, o, s.now()))
	return o, nil
}

// insert allocates an order number, retrying on collision.
func (s *Service) insert(ctx context.Context, repo Repository, o *Order) error {
	for range maxNumberAttempts {
		o.Number = NewNumber(s.now())
		ok, err := repo.Insert(ctx, o)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		if ok {
			return nil
		}
		zctx.From(ctx).Debug("Order number collision", zap.String("order", o.Number))
	}
	return ErrNumberExhausted
}

// Get returns the user's order by number. Orders of other users are
// reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, userID int64, number string) (*Order, error) {
	o, err := s.lookup(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// GetAny returns an order by number regardless of owner.
func (s *Service) GetAny(ctx context.Context, number string) (*Order, error) {
	return s.lookup(ctx, number)
}

func (s *Service) lookup(ctx context.Context, number string) (*Order, error) {
	var o *Order
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		o, err = tx.Orders().GetByNumber(ctx, number)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListByUser returns the user's most recent orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	var orders []Order
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		orders, err = tx.Orders().ListByUser(ctx, userID, listLimit)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Complete confirms the purchase of a delivered order and credits the points
// it earned. Crediting happens once because the transition happens once.
func (s *Service) Complete(ctx context.Context, userID int64, number string) (_ *Order, rerr error) {
	ctx, span := s.start(ctx, "Complete")
	defer func() { finish(span, rerr) }()

	o, err := s.move(ctx, number, func(ctx context.Context, tx Tx, o *Order) error {
		if o.UserID != userID {
			return ErrNotFound
		}
		if err := Transition(ctx, tx.Orders(), o, CompletableFrom, StatusCompleted, ""); err != nil {
			return err
		}
		if o.EarnedPoint > 0 {
			orderID := o.ID
			if _, err := point.Apply(ctx, tx.Points(), o.UserID, o.EarnedPoint, point.ReasonPurchaseConfirm, &orderID); err != nil {
				return errors.Wrap(err, "credit points")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	Emit(ctx, s.publisher, NewEvent(EventCompleted, o, s.now()))
	return o, nil
}

// Advance moves an order one step along fulfilment:
// paid → preparing → shipped → delivered.
func (s *Service) Advance(ctx context.Context, number string, to Status) (_ *Order, rerr error) {
	ctx, span := s.start(ctx, "Advance")
	defer func() { finish(span, rerr) }()

	o, err := s.move(ctx, number, func(ctx context.Context, tx Tx, o *Order) error {
		from, ok := fulfilmentFrom[to]
		if !ok {
			return &StateError{Number: o.Number, From: o.Status, To: to}
		}
		return Transition(ctx, tx.Orders(), o, []Status{from}, to, "")
	})
	if err != nil {
		return nil, err
	}

	Emit(ctx, s.publisher, NewEvent(EventStatusChanged, o, s.now()))
	return o, nil
}

// move locks the order and runs fn in one transaction.
func (s *Service) move(ctx context.Context, number string, fn func(ctx context.Context, tx Tx, o *Order) error) (*Order, error) {
	var o *Order
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		if o, err = tx.Orders().LockByNumber(ctx, number); err != nil {
			return err
		}
		return fn(ctx, tx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Transition performs the compare-and-set from any of from to `to` and
// updates o on success. A lost race or a disallowed source state yields a
// *StateError.
func Transition(ctx context.Context, repo Repository, o *Order, from []Status, to Status, reason string) error {
	if !o.In(from...) {
		return &StateError{Number: o.Number, From: o.Status, To: to}
	}
	ok, err := repo.Transition(ctx, o.ID, from, to, reason)
	if err != nil {
		return errors.Wrapf(err, "transition to %s", to)
	}
	if !ok {
		return &StateError{Number: o.Number, From: o.Status, To: to}
	}
	o.Status = to
	if reason != "" {
		o.CancelReason = reason
	}
	return nil
}

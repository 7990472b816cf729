package payment

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/point"
)

// Service confirms, cancels, refunds and settles payments against orders.
type Service struct {
	tx        Transactor
	gateway   Gateway
	publisher order.Publisher
	now       func() time.Time

	tracer    trace.Tracer
	confirmed metric.Int64Counter
	refunded  metric.Int64Counter
	cancelled metric.Int64Counter
}

// NewService creates a payment Service.
func NewService(tx Transactor, gateway Gateway, opts ...Option) (*Service, error) {
	o := newOptions(opts)
	meter := o.meterProvider.Meter(instrumentationName)

	confirmed, err := meter.Int64Counter("shop.payments.confirmed",
		metric.WithDescription("Payments approved by the PSP"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "payments confirmed counter")
	}
	refunded, err := meter.Int64Counter("shop.payments.refunded",
		metric.WithDescription("Captured payments returned to the buyer"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "payments refunded counter")
	}
	cancelled, err := meter.Int64Counter("shop.payments.cancelled",
		metric.WithDescription("Orders cancelled by the buyer"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "payments cancelled counter")
	}

	return &Service{
		tx:        tx,
		gateway:   gateway,
		publisher: o.publisher,
		now:       o.now,
		tracer:    o.tracerProvider.Tracer(instrumentationName),
		confirmed: confirmed,
		refunded:  refunded,
		cancelled: cancelled,
	}, nil
}

func (s *Service) recordRefund(ctx context.Context, status order.Status) {
	s.refunded.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type snapshot struct {
	order   *order.Order
	payment *Payment
}

// load reads the order and its payment, if any.
func (s *Service) load(ctx context.Context, number string) (snapshot, error) {
	var snap snapshot
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByNumber(ctx, number)
		if err != nil {
			return err
		}
		snap.order = o

		p, err := tx.Payments().GetByOrder(ctx, o.ID)
		switch {
		case err == nil:
			snap.payment = p
		case !errors.Is(err, ErrNotFound):
			return errors.Wrap(err, "get payment")
		}
		return nil
	})
	return snap, err
}

// live reports whether p holds or may still capture money.
func live(p *Payment) bool {
	return p != nil && p.Status != StatusCancelled
}

// Confirm checks the claimed amount against the stored order, asks the PSP
// to approve the payment and records it. A repeated confirmation with the
// same payment key returns the stored payment; another key is rejected
// while a payment is live. An approval that does not match the order is
// cancelled at the PSP and nothing is recorded.
func (s *Service) Confirm(ctx context.Context, userID int64, number, paymentKey string, amount int64) (_ *Payment, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Confirm")
	defer func() { finish(span, rerr) }()
	lg := zctx.From(ctx).With(zap.String("order", number))

	snap, err := s.load(ctx, number)
	if err != nil {
		return nil, err
	}
	o := snap.order
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	if p := snap.payment; live(p) {
		if p.PaymentKey == paymentKey {
			return p, nil
		}
		lg.Warn("Order already has a payment",
			zap.String("payment_status", string(p.Status)),
		)
		return nil, errors.Wrapf(ErrPaymentExists, "order %s", o.Number)
	}
	if o.Status != order.StatusPending {
		return nil, &order.StateError{Number: o.Number, From: o.Status, To: order.StatusPaid}
	}

	expected := o.PayableAmount()
	if amount != expected {
		lg.Warn("Payment amount mismatch",
			zap.Int64("expected", expected),
			zap.Int64("claimed", amount),
		)
		return nil, &AmountMismatchError{Expected: expected, Claimed: amount}
	}

	conf, err := s.gateway.Confirm(ctx, ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    o.Number,
		Amount:     amount,
	})
	if err != nil {
		lg.Warn("PSP confirm failed", zap.Error(err))
		return nil, err
	}
	key := conf.PaymentKey
	if key == "" {
		key = paymentKey
	}
	switch {
	case conf.OrderID != "" && conf.OrderID != o.Number:
		lg.Error("PSP approved another order", zap.String("psp_order", conf.OrderID))
		s.void(ctx, key, "order mismatch")
		return nil, errors.Wrapf(ErrOrderMismatch, "approved %s for %s", conf.OrderID, o.Number)
	case conf.TotalAmount != expected:
		lg.Error("PSP approved another amount",
			zap.Int64("expected", expected),
			zap.Int64("approved", conf.TotalAmount),
		)
		s.void(ctx, key, "amount mismatch")
		return nil, &AmountMismatchError{Expected: expected, Claimed: conf.TotalAmount}
	}

	p := &Payment{
		OrderID:         o.ID,
		PaymentKey:      key,
		Method:          conf.Method,
		Amount:          conf.TotalAmount,
		Status:          StatusDone,
		ApprovedAt:      conf.ApprovedAt,
		ReceiptURL:      conf.ReceiptURL,
		CardCompany:     conf.CardCompany,
		CardNumber:      conf.CardNumber,
		EasyPayProvider: conf.EasyPayProvider,
		VirtualAccount:  conf.VirtualAccount,
		Secret:          conf.Secret,
		Raw:             conf.Raw,
	}
	if conf.Status == GatewayWaitingForDeposit {
		p.Status = StatusWaitingForDeposit
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.Orders().LockByNumber(ctx, number)
		if err != nil {
			return err
		}
		o = locked
		cur, err := tx.Payments().GetByOrder(ctx, o.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "get payment")
		}
		if live(cur) {
			return errors.Wrapf(ErrPaymentExists, "order %s", o.Number)
		}
		if p.Status == StatusDone {
			if err := order.Transition(ctx, tx.Orders(), o, []order.Status{order.StatusPending}, order.StatusPaid, ""); err != nil {
				return err
			}
		} else if o.Status != order.StatusPending {
			return &order.StateError{Number: o.Number, From: o.Status, To: order.StatusPending}
		}
		return tx.Payments().Insert(ctx, p)
	})
	if err != nil {
		if errors.Is(err, ErrPaymentExists) || errors.Is(err, order.ErrInvalidState) {
			// Lost a race with another confirmation or a cancellation.
			lg.Warn("Confirmed payment rejected locally", zap.Error(err))
			s.void(ctx, key, "order changed during confirmation")
			return nil, err
		}
		// The PSP has captured the money; this needs manual reconciliation.
		lg.Error("Record confirmed payment",
			zap.String("payment_key", key),
			zap.Error(err),
		)
		return nil, err
	}

	s.confirmed.Add(ctx, 1)
	lg.Info("Payment confirmed",
		zap.String("status", string(p.Status)),
		zap.Int64("amount", p.Amount),
	)
	if p.Status == StatusDone {
		order.Emit(ctx, s.publisher, order.NewEvent(order.EventPaid, o, s.now()))
	}
	return p, nil
}

// void cancels a PSP approval that was not recorded locally.
func (s *Service) void(ctx context.Context, paymentKey, reason string) {
	if _, err := s.gateway.Cancel(ctx, CancelRequest{PaymentKey: paymentKey, Reason: reason}); err != nil {
		// Money may stay captured without a local payment row.
		zctx.From(ctx).Error("Void PSP payment",
			zap.String("payment_key", paymentKey),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

// Cancel cancels an owned pending or paid order. A live payment is
// cancelled at the PSP first. Then one transaction cancels the payment,
// records a refund when money was captured, cancels the order and reverses
// its stock, points and coupon. A PSP failure leaves local state untouched.
func (s *Service) Cancel(ctx context.Context, userID int64, number, reason string) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Cancel")
	defer func() { finish(span, rerr) }()
	lg := zctx.From(ctx).With(zap.String("order", number))

	snap, err := s.load(ctx, number)
	if err != nil {
		return nil, err
	}
	o := snap.order
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	if !o.In(order.CancellableFrom...) {
		return nil, &order.StateError{Number: o.Number, From: o.Status, To: order.StatusCancelled}
	}
	p := snap.payment
	if !live(p) {
		p = nil
	}
	if p != nil {
		if _, err := s.gateway.Cancel(ctx, CancelRequest{PaymentKey: p.PaymentKey, Reason: reason}); err != nil {
			lg.Warn("PSP cancel failed", zap.Error(err))
			return nil, err
		}
	}

	var r *Refund
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.Orders().LockByNumber(ctx, number)
		if err != nil {
			return err
		}
		o = locked
		if err := order.Transition(ctx, tx.Orders(), o, order.CancellableFrom, order.StatusCancelled, reason); err != nil {
			return err
		}

		cur, err := tx.Payments().GetByOrder(ctx, o.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "get payment")
		}
		if live(cur) {
			if p == nil || cur.ID != p.ID {
				// Confirmed after the PSP step was skipped.
				return errors.Wrapf(ErrPaymentExists, "order %s", o.Number)
			}
			if _, err := tx.Payments().SetStatus(ctx, cur.ID, cur.Status, StatusCancelled, nil); err != nil {
				return errors.Wrap(err, "cancel payment")
			}
			if cur.Status == StatusDone {
				r = &Refund{OrderID: o.ID, PaymentID: cur.ID, Amount: cur.Amount, Reason: reason}
				if err := tx.Payments().InsertRefund(ctx, r); err != nil {
					return errors.Wrap(err, "insert refund")
				}
			}
		}
		return order.Reverse(ctx, tx, o, point.ReasonOrderCancel)
	})
	if err != nil {
		if p != nil {
			// The PSP has already cancelled the payment.
			lg.Error("Record cancellation",
				zap.String("payment_key", p.PaymentKey),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.cancelled.Add(ctx, 1)
	if r != nil {
		s.recordRefund(ctx, order.StatusCancelled)
	}
	lg.Info("Order cancelled", zap.String("reason", reason), zap.Bool("refunded", r != nil))
	order.Emit(ctx, s.publisher, order.NewEvent(order.EventCancelled, o, s.now()))
	return o, nil
}

// Refund cancels the payment at the PSP and then, in one transaction, marks
// the order refunded, records the refund and reverses the order's effects.
// A PSP failure leaves local state untouched.
func (s *Service) Refund(ctx context.Context, userID int64, number, reason string) (_ *Refund, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Refund")
	defer func() { finish(span, rerr) }()
	lg := zctx.From(ctx).With(zap.String("order", number))

	snap, err := s.load(ctx, number)
	if err != nil {
		return nil, err
	}
	o := snap.order
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	if !o.In(order.RefundableFrom...) {
		return nil, &order.StateError{Number: o.Number, From: o.Status, To: order.StatusRefunded}
	}
	p := snap.payment
	if p == nil || p.Status != StatusDone {
		return nil, &order.StateError{Number: o.Number, From: o.Status, To: order.StatusRefunded}
	}

	if _, err := s.gateway.Cancel(ctx, CancelRequest{PaymentKey: p.PaymentKey, Reason: reason}); err != nil {
		lg.Warn("PSP cancel failed", zap.Error(err))
		return nil, err
	}

	r := &Refund{
		PaymentID: p.ID,
		Amount:    p.Amount,
		Reason:    reason,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.Orders().LockByNumber(ctx, number)
		if err != nil {
			return err
		}
		o = locked
		r.OrderID = o.ID

		if err := order.Transition(ctx, tx.Orders(), o, order.RefundableFrom, order.StatusRefunded, reason); err != nil {
			return err
		}
		if err := tx.Payments().InsertRefund(ctx, r); err != nil {
			return errors.Wrap(err, "insert refund")
		}
		if _, err := tx.Payments().SetStatus(ctx, p.ID, StatusDone, StatusCancelled, nil); err != nil {
			return errors.Wrap(err, "cancel payment")
		}
		return order.Reverse(ctx, tx, o, point.ReasonOrderRefund)
	})
	if err != nil {
		lg.Error("Record refund",
			zap.String("payment_key", p.PaymentKey),
			zap.Error(err),
		)
		return nil, err
	}

	s.recordRefund(ctx, order.StatusRefunded)
	lg.Info("Order refunded", zap.Int64("amount", r.Amount), zap.String("reason", reason))
	order.Emit(ctx, s.publisher, order.NewEvent(order.EventRefunded, o, s.now()))
	return r, nil
}

// DepositNotice is a PSP callback about a virtual-account payment.
type DepositNotice struct {
	OrderNumber string
	Status      GatewayStatus
	Secret      string
}

// HandleDeposit settles a virtual-account payment: DONE marks the order
// paid, CANCELED cancels it with a full reversal. Repeated notices are
// no-ops.
func (s *Service) HandleDeposit(ctx context.Context, n DepositNotice) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.HandleDeposit")
	defer func() { finish(span, rerr) }()
	lg := zctx.From(ctx).With(zap.String("order", n.OrderNumber), zap.String("status", string(n.Status)))

	snap, err := s.load(ctx, n.OrderNumber)
	if err != nil {
		return err
	}
	p := snap.payment
	if p == nil {
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(p.Secret), []byte(n.Secret)) != 1 {
		lg.Warn("Deposit secret mismatch")
		return ErrSecretMismatch
	}
	if p.Status != StatusWaitingForDeposit {
		lg.Debug("Deposit already settled")
		return nil
	}

	var (
		o       *order.Order
		event   order.EventType
		settled bool
	)
	settle := func(to Status, approvedAt *time.Time, fn func(ctx context.Context, tx Tx) error) error {
		return s.tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			locked, err := tx.Orders().LockByNumber(ctx, n.OrderNumber)
			if err != nil {
				return err
			}
			o = locked
			ok, err := tx.Payments().SetStatus(ctx, p.ID, StatusWaitingForDeposit, to, approvedAt)
			if err != nil {
				return errors.Wrap(err, "set payment status")
			}
			if !ok {
				return nil
			}
			settled = true
			return fn(ctx, tx)
		})
	}

	switch n.Status {
	case GatewayDone:
		event = order.EventPaid
		now := s.now()
		err = settle(StatusDone, &now, func(ctx context.Context, tx Tx) error {
			return order.Transition(ctx, tx.Orders(), o, []order.Status{order.StatusPending}, order.StatusPaid, "")
		})
	case GatewayCanceled, GatewayExpired, GatewayAborted:
		event = order.EventCancelled
		err = settle(StatusCancelled, nil, func(ctx context.Context, tx Tx) error {
			reason := "deposit " + string(n.Status)
			if err := order.Transition(ctx, tx.Orders(), o, order.CancellableFrom, order.StatusCancelled, reason); err != nil {
				return err
			}
			return order.Reverse(ctx, tx, o, point.ReasonOrderCancel)
		})
	default:
		lg.Debug("Ignoring deposit notice")
		return nil
	}
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}

	lg.Info("Deposit settled")
	order.Emit(ctx, s.publisher, order.NewEvent(event, o, s.now()))
	return nil
}

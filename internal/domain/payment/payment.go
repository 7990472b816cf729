// Package payment confirms and refunds order payments through a PSP.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/oralcare-shop/internal/domain/order"
)

// Status of a stored payment.
type Status string

const (
	StatusWaitingForDeposit Status = "waiting_for_deposit"
	StatusDone              Status = "done"
	StatusCancelled         Status = "cancelled"
)

var (
	// ErrNotFound is returned when an order has no payment row.
	ErrNotFound = errors.New("payment not found")
	// ErrAmountMismatch is returned when the client-claimed amount differs
	// from the amount recomputed from the stored order.
	ErrAmountMismatch = errors.New("payment amount does not match order")
	// ErrSecretMismatch is returned for deposit callbacks with a wrong secret.
	ErrSecretMismatch = errors.New("deposit secret mismatch")
	// ErrOrderMismatch is returned when the PSP approves a payment for an
	// order other than the one being confirmed.
	ErrOrderMismatch = errors.New("PSP confirmed a different order")
	// ErrPaymentExists is returned when an order already has a payment that
	// is not cancelled under another payment key.
	ErrPaymentExists = errors.New("order already has a payment")
)

// AmountMismatchError carries both sides of a rejected confirmation.
type AmountMismatchError struct {
	Expected int64
	Claimed  int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount %d does not match order amount %d", e.Claimed, e.Expected)
}

// Is reports whether target is ErrAmountMismatch.
func (e *AmountMismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}

// VirtualAccount describes a bank-transfer account issued by the PSP.
type VirtualAccount struct {
	AccountNumber string
	BankCode      string
	CustomerName  string
	DueDate       *time.Time
}

// Payment is the stored result of a PSP confirmation.
type Payment struct {
	ID              int64
	OrderID         int64
	PaymentKey      string
	Method          string
	Amount          int64
	Status          Status
	ApprovedAt      *time.Time
	ReceiptURL      string
	CardCompany     string
	CardNumber      string
	EasyPayProvider string
	VirtualAccount  *VirtualAccount
	// Secret authenticates deposit callbacks for virtual accounts.
	Secret    string
	Raw       []byte
	CreatedAt time.Time
}

// Refund records money returned for an order.
type Refund struct {
	ID        int64
	OrderID   int64
	PaymentID int64
	Amount    int64
	Reason    string
	CreatedAt time.Time
}

// Repository persists payments and refunds inside the caller's transaction.
type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	// GetByOrder returns the latest payment of the order, or ErrNotFound.
	GetByOrder(ctx context.Context, orderID int64) (*Payment, error)
	// SetStatus moves the payment from `from` to `to` and reports whether
	// a row changed. approvedAt is stored when not nil.
	SetStatus(ctx context.Context, paymentID int64, from, to Status, approvedAt *time.Time) (bool, error)
	InsertRefund(ctx context.Context, r *Refund) error
}

// Tx extends the order stores with payment rows.
type Tx interface {
	order.Tx
	Payments() Repository
}

// Transactor runs fn in one transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Package point maintains the append-only point ledger.
package point

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Reason classifies a ledger entry.
type Reason string

const (
	ReasonOrderUse        Reason = "order_use"
	ReasonOrderCancel     Reason = "order_cancel"
	ReasonOrderRefund     Reason = "order_refund"
	ReasonPurchaseConfirm Reason = "purchase_confirm"
	ReasonGrant           Reason = "grant"
)

// ErrInsufficientBalance is returned when a debit would make the balance negative.
var ErrInsufficientBalance = errors.New("insufficient point balance")

// Entry is one signed ledger row. BalanceAfter is the user's balance once the
// entry is applied.
type Entry struct {
	ID           int64
	UserID       int64
	Delta        int64
	BalanceAfter int64
	Reason       Reason
	OrderID      *int64
	CreatedAt    time.Time
}

// Store persists balances and ledger entries. Calls run inside the caller's
// transaction.
type Store interface {
	// Balance returns the current balance and locks it until the
	// transaction ends.
	Balance(ctx context.Context, userID int64) (int64, error)
	// Append stores e and sets the user's balance to e.BalanceAfter.
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Apply records delta for userID. The balance and the new ledger row change
// together; a zero delta writes nothing.
func Apply(ctx context.Context, store Store, userID, delta int64, reason Reason, orderID *int64) (*Entry, error) {
	if delta == 0 {
		return nil, nil
	}

	balance, err := store.Balance(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read balance")
	}
	next := balance + delta
	if next < 0 {
		return nil, ErrInsufficientBalance
	}

	e, err := store.Append(ctx, Entry{
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: next,
		Reason:       reason,
		OrderID:      orderID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "append ledger entry")
	}
	return &e, nil
}

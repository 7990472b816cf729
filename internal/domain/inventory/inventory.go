// Package inventory reserves and releases product and option stock.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/oralcare-shop/internal/domain/pricing"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

// Kind classifies a reservation failure.
type Kind string

const (
	KindOutOfStock      Kind = "OUT_OF_STOCK"
	KindProductInactive Kind = "PRODUCT_INACTIVE"
	KindNotFound        Kind = "NOT_FOUND"
)

// Sentinels matched by *Error through errors.Is.
var (
	ErrOutOfStock      = errors.New("out of stock")
	ErrProductInactive = errors.New("product inactive")
	ErrNotFound        = errors.New("product or option not found")
)

// Error reports which line of a reservation could not be satisfied.
type Error struct {
	Kind      Kind
	ProductID int64
	OptionID  *int64
}

func (e *Error) Error() string {
	if e.OptionID != nil {
		return fmt.Sprintf("%s: product %d option %d", e.sentinel(), e.ProductID, *e.OptionID)
	}
	return fmt.Sprintf("%s: product %d", e.sentinel(), e.ProductID)
}

// Is matches the sentinel error for the failure kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindOutOfStock:
		return ErrOutOfStock
	case KindProductInactive:
		return ErrProductInactive
	default:
		return ErrNotFound
	}
}

// Request asks for quantity units of a product, optionally of one option.
type Request struct {
	ProductID int64
	OptionID  *int64
	Quantity  int
}

// Snapshot is the immutable copy of name and price data stored on an order
// line, detached from later catalog edits.
type Snapshot struct {
	ProductID        int64
	OptionID         *int64
	ProductName      string
	OptionLabel      string
	BasePrice        int64
	SalePrice        *int64
	OptionAdjustment int64
	// UnitPrice is the charged price for one unit, membership discount included.
	UnitPrice int64
	Quantity  int
}

// Line converts the snapshot into a pricing line.
func (s Snapshot) Line() pricing.Line {
	return pricing.Line{
		BasePrice:        s.BasePrice,
		SalePrice:        s.SalePrice,
		OptionAdjustment: s.OptionAdjustment,
		Quantity:         s.Quantity,
	}
}

// Store exposes stock rows. Calls run inside the caller's transaction.
type Store interface {
	// LockProduct returns the product and locks its row. Returns
	// product.ErrNotFound when missing.
	LockProduct(ctx context.Context, productID int64) (*product.Product, error)
	// LockOption returns the option of productID and locks its row. Returns
	// product.ErrNotFound when missing.
	LockOption(ctx context.Context, productID, optionID int64) (*product.Option, error)
	// DecrementStock removes qty units only if that many are available and
	// bumps the product sale count. It reports false when stock is short.
	DecrementStock(ctx context.Context, productID int64, optionID *int64, qty int) (bool, error)
	// IncrementStock returns qty units and lowers the sale count, not below zero.
	IncrementStock(ctx context.Context, productID int64, optionID *int64, qty int) error
}

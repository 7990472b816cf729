package product

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested product or option does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID        int64
	Name      string
	BasePrice int64
	// SalePrice overrides BasePrice when set.
	SalePrice *int64
	Stock     int
	SaleCount int
	Active    bool
}

// Option is a purchasable variant of a product (size, flavour, bundle).
// Options carry their own stock and a signed price adjustment.
type Option struct {
	ID              int64
	ProductID       int64
	Label           string
	PriceAdjustment int64
	Stock           int
	Active          bool
}

// EffectivePrice returns the sale price when present, otherwise the base price.
func (p *Product) EffectivePrice() int64 {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.BasePrice
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	GetOptionsByIDs(ctx context.Context, ids []int64) ([]Option, error)
}

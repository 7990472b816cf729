package inventory

import (
	"github.com/xenking/oralcare-shop/internal/domain/pricing"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

// Quote builds the snapshots Reserve would produce from already loaded
// catalog rows, without locking or changing stock. Failures use the same
// *Error kinds as Reserve.
func Quote(products []product.Product, options []product.Option, reqs []Request, discounted bool) ([]Snapshot, error) {
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	optByID := make(map[int64]product.Option, len(options))
	for _, o := range options {
		optByID[o.ID] = o
	}

	snapshots := make([]Snapshot, len(reqs))
	for i, req := range reqs {
		if req.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		fail := func(kind Kind) error {
			return &Error{Kind: kind, ProductID: req.ProductID, OptionID: req.OptionID}
		}

		p, ok := byID[req.ProductID]
		if !ok {
			return nil, fail(KindNotFound)
		}
		if !p.Active {
			return nil, fail(KindProductInactive)
		}
		snap := Snapshot{
			ProductID:   p.ID,
			OptionID:    req.OptionID,
			ProductName: p.Name,
			BasePrice:   p.BasePrice,
			SalePrice:   p.SalePrice,
			Quantity:    req.Quantity,
		}
		available := p.Stock

		if req.OptionID != nil {
			o, ok := optByID[*req.OptionID]
			if !ok || o.ProductID != p.ID {
				return nil, fail(KindNotFound)
			}
			if !o.Active {
				return nil, fail(KindProductInactive)
			}
			snap.OptionLabel = o.Label
			snap.OptionAdjustment = o.PriceAdjustment
			available = o.Stock
		}
		if available < req.Quantity {
			return nil, fail(KindOutOfStock)
		}

		snap.UnitPrice = pricing.ResolveUnitPrice(snap.BasePrice, snap.SalePrice, snap.OptionAdjustment, discounted)
		snapshots[i] = snap
	}
	return snapshots, nil
}

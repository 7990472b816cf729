package inventory

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/oralcare-shop/internal/domain/pricing"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

// ErrInvalidQuantity is returned for non-positive line quantities.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// Reserve validates and decrements stock for every request and returns the
// line snapshots in request order. It must run inside a transaction: on any
// error the caller rolls back and no stock changes survive.
func Reserve(ctx context.Context, store Store, reqs []Request, discounted bool) ([]Snapshot, error) {
	snapshots := make([]Snapshot, len(reqs))

	// Rows are locked in key order so that concurrent reservations over the
	// same products cannot deadlock.
	for _, i := range lockOrder(reqs) {
		req := reqs[i]
		if req.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %d", req.ProductID)
		}

		snap, err := reserveLine(ctx, store, req, discounted)
		if err != nil {
			return nil, err
		}
		snapshots[i] = snap
	}
	return snapshots, nil
}

func reserveLine(ctx context.Context, store Store, req Request, discounted bool) (Snapshot, error) {
	fail := func(kind Kind) error {
		return &Error{Kind: kind, ProductID: req.ProductID, OptionID: req.OptionID}
	}

	p, err := store.LockProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return Snapshot{}, fail(KindNotFound)
		}
		return Snapshot{}, errors.Wrapf(err, "lock product %d", req.ProductID)
	}
	if !p.Active {
		return Snapshot{}, fail(KindProductInactive)
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
		o, err := store.LockOption(ctx, req.ProductID, *req.OptionID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return Snapshot{}, fail(KindNotFound)
			}
			return Snapshot{}, errors.Wrapf(err, "lock option %d", *req.OptionID)
		}
		if !o.Active {
			return Snapshot{}, fail(KindProductInactive)
		}
		snap.OptionLabel = o.Label
		snap.OptionAdjustment = o.PriceAdjustment
		available = o.Stock
	}

	if available < req.Quantity {
		return Snapshot{}, fail(KindOutOfStock)
	}
	// The conditional update re-checks sufficiency in the same statement.
	ok, err := store.DecrementStock(ctx, req.ProductID, req.OptionID, req.Quantity)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "decrement stock for product %d", req.ProductID)
	}
	if !ok {
		return Snapshot{}, fail(KindOutOfStock)
	}

	snap.UnitPrice = pricing.ResolveUnitPrice(snap.BasePrice, snap.SalePrice, snap.OptionAdjustment, discounted)
	return snap, nil
}

// Release returns the stock held by previously reserved lines. Callers guard
// against releasing the same order twice.
func Release(ctx context.Context, store Store, lines []Request) error {
	for _, i := range lockOrder(lines) {
		l := lines[i]
		if err := store.IncrementStock(ctx, l.ProductID, l.OptionID, l.Quantity); err != nil {
			return errors.Wrapf(err, "restore stock for product %d", l.ProductID)
		}
	}
	return nil
}

func lockOrder(reqs []Request) []int {
	idx := make([]int, len(reqs))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if c := cmp.Compare(reqs[a].ProductID, reqs[b].ProductID); c != 0 {
			return c
		}
		return cmp.Compare(optionKey(reqs[a].OptionID), optionKey(reqs[b].OptionID))
	})
	return idx
}

func optionKey(id *int64) int64 {
	if id == nil {
		return -1
	}
	return *id
}

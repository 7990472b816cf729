package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/product"
)

const (
	productColumns = `id, name, base_price, sale_price, stock, sale_count, active`
	optionColumns  = `id, product_id, label, price_adjustment, stock, active`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	getOptionsByIDsSQL  = `SELECT ` + optionColumns + ` FROM product_options WHERE id = ANY($1) ORDER BY id`

	lockProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	lockOptionSQL  = `SELECT ` + optionColumns + ` FROM product_options
		WHERE id = $1 AND product_id = $2 FOR UPDATE`

	decrementProductSQL = `UPDATE products
		SET stock = stock - $2, sale_count = sale_count + $2
		WHERE id = $1 AND stock >= $2`
	decrementOptionSQL = `UPDATE product_options
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`
	bumpSaleCountSQL = `UPDATE products SET sale_count = sale_count + $2 WHERE id = $1`

	incrementProductSQL = `UPDATE products
		SET stock = stock + $2, sale_count = GREATEST(sale_count - $2, 0)
		WHERE id = $1`
	incrementOptionSQL = `UPDATE product_options SET stock = stock + $2 WHERE id = $1`
	dropSaleCountSQL   = `UPDATE products SET sale_count = GREATEST(sale_count - $2, 0) WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	q DBTX
}

// NewProductRepository returns a ProductRepository that uses q.
func NewProductRepository(q DBTX) *ProductRepository {
	return &ProductRepository{q: q}
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.q.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetOptionsByIDs returns options matching any of the given IDs.
func (r *ProductRepository) GetOptionsByIDs(ctx context.Context, ids []int64) ([]product.Option, error) {
	rows, err := r.q.Query(ctx, getOptionsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get options by ids")
	}
	return pgx.CollectRows(rows, scanOption)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.BasePrice, &p.SalePrice, &p.Stock, &p.SaleCount, &p.Active)
	return p, err
}

func scanOption(row pgx.CollectableRow) (product.Option, error) {
	var o product.Option
	err := row.Scan(&o.ID, &o.ProductID, &o.Label, &o.PriceAdjustment, &o.Stock, &o.Active)
	return o, err
}

var _ inventory.Store = (*InventoryStore)(nil)

// InventoryStore implements inventory.Store with row locks and conditional
// updates.
type InventoryStore struct {
	q DBTX
}

func (s *InventoryStore) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := s.q.Query(ctx, lockProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "lock product %d", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "lock product %d", id)
	}
	return &p, nil
}

func (s *InventoryStore) LockOption(ctx context.Context, productID, optionID int64) (*product.Option, error) {
	rows, err := s.q.Query(ctx, lockOptionSQL, optionID, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "lock option %d", optionID)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOption)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "lock option %d", optionID)
	}
	return &o, nil
}

func (s *InventoryStore) DecrementStock(ctx context.Context, productID int64, optionID *int64, qty int) (bool, error) {
	if optionID == nil {
		tag, err := s.q.Exec(ctx, decrementProductSQL, productID, qty)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() == 1, nil
	}

	tag, err := s.q.Exec(ctx, decrementOptionSQL, *optionID, qty)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if _, err := s.q.Exec(ctx, bumpSaleCountSQL, productID, qty); err != nil {
		return false, err
	}
	return true, nil
}

func (s *InventoryStore) IncrementStock(ctx context.Context, productID int64, optionID *int64, qty int) error {
	if optionID == nil {
		_, err := s.q.Exec(ctx, incrementProductSQL, productID, qty)
		return err
	}
	if _, err := s.q.Exec(ctx, incrementOptionSQL, *optionID, qty); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx, dropSaleCountSQL, productID, qty)
	return err
}

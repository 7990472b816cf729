// Package postgres implements the shop stores on PostgreSQL with pgx.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oralcare-shop/db"
	"github.com/xenking/oralcare-shop/internal/domain/coupon"
	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/point"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// DB runs units of work against a pool.
type DB struct {
	pool *pgxpool.Pool
}

// New returns a DB over pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Run executes fn inside a transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
func (d *DB) Run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	pgTx, err := d.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		// No-op after a successful commit.
		_ = pgTx.Rollback(ctx)
	}()

	if err := fn(ctx, &Tx{q: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// OrderTransactor adapts the DB to order.Transactor.
func (d *DB) OrderTransactor() order.Transactor { return orderTransactor{d} }

// PaymentTransactor adapts the DB to payment.Transactor.
func (d *DB) PaymentTransactor() payment.Transactor { return paymentTransactor{d} }

type orderTransactor struct{ d *DB }

func (t orderTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return t.d.Run(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type paymentTransactor struct{ d *DB }

func (t paymentTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	return t.d.Run(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// Tx binds the repositories to one transaction.
type Tx struct {
	q DBTX
}

var (
	_ order.Tx   = (*Tx)(nil)
	_ payment.Tx = (*Tx)(nil)
)

func (tx *Tx) Orders() order.Repository { return &OrderRepository{q: tx.q} }
func (tx *Tx) Inventory() inventory.Store { return &InventoryStore{q: tx.q} }
func (tx *Tx) Coupons() coupon.Store { return &CouponStore{q: tx.q} }
func (tx *Tx) Points() point.Store { return &PointStore{q: tx.q} }
func (tx *Tx) Carts() order.CartStore { return &CartStore{q: tx.q} }
func (tx *Tx) Payments() payment.Repository { return &PaymentRepository{q: tx.q} }

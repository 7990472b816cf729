// Command seed-db loads a development catalog: users with access tokens,
// products with options, and coupons.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xenking/oralcare-shop/internal/domain/auth"
	"github.com/xenking/oralcare-shop/internal/handler"
	"github.com/xenking/oralcare-shop/internal/storage/postgres"
)

const (
	upsertUserSQL = `INSERT INTO users (id, email, name, role, point)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role, point = EXCLUDED.point`

	upsertMembershipSQL = `INSERT INTO memberships (user_id, status, expires_at)
		VALUES ($1, $2::text, CASE WHEN $2::text = 'approved' THEN now() + interval '1 year' END)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status, expires_at = EXCLUDED.expires_at, updated_at = now()`

	upsertProductSQL = `INSERT INTO products (id, name, base_price, sale_price, stock, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, base_price = EXCLUDED.base_price,
		    sale_price = EXCLUDED.sale_price, stock = EXCLUDED.stock, active = TRUE`

	upsertOptionSQL = `INSERT INTO product_options (id, product_id, label, price_adjustment, stock, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE
		SET product_id = EXCLUDED.product_id, label = EXCLUDED.label,
		    price_adjustment = EXCLUDED.price_adjustment, stock = EXCLUDED.stock, active = TRUE`

	upsertCouponSQL = `INSERT INTO coupons (id, name, discount_type, discount_value, min_order_amount,
		                     max_discount_amount, usage_limit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, discount_type = EXCLUDED.discount_type,
		    discount_value = EXCLUDED.discount_value, min_order_amount = EXCLUDED.min_order_amount,
		    max_discount_amount = EXCLUDED.max_discount_amount, usage_limit = EXCLUDED.usage_limit`

	// Explicit ids leave the sequences behind.
	syncSequencesSQL = `SELECT setval(pg_get_serial_sequence('users', 'id'), (SELECT coalesce(max(id), 1) FROM users)),
		setval(pg_get_serial_sequence('products', 'id'), (SELECT coalesce(max(id), 1) FROM products)),
		setval(pg_get_serial_sequence('product_options', 'id'), (SELECT coalesce(max(id), 1) FROM product_options)),
		setval(pg_get_serial_sequence('coupons', 'id'), (SELECT coalesce(max(id), 1) FROM coupons))`
)

func main() {
	var (
		databaseURL string
		catalogFile string
		pepper      string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&pepper, "token-pepper", "", "HMAC pepper for token hashing (or SHOP_TOKEN_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if pepper == "" {
		pepper = os.Getenv("SHOP_TOKEN_PEPPER")
	}
	if pepper == "" {
		lg.Fatal("token pepper is required: set --token-pepper or SHOP_TOKEN_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogFile, []byte(pepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile string, pepper []byte) error {
	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	c, err := decodeCatalog(data)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := seedUsers(ctx, lg, tx, c.Users, pepper); err != nil {
			return errors.Wrap(err, "seed users")
		}
		if err := seedProducts(ctx, lg, tx, c.Products); err != nil {
			return errors.Wrap(err, "seed products")
		}
		if err := seedCoupons(ctx, lg, tx, c); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
		if _, err := tx.Exec(ctx, syncSequencesSQL); err != nil {
			return errors.Wrap(err, "sync sequences")
		}
		return nil
	})
}

func seedUsers(ctx context.Context, lg *zap.Logger, tx pgx.Tx, users []seedUser, pepper []byte) error {
	tokens := postgres.NewTokenRepository(tx)
	for _, u := range users {
		role := u.Role
		if role == "" {
			role = string(auth.RoleUser)
		}
		if _, err := tx.Exec(ctx, upsertUserSQL, u.ID, u.Email, u.Name, role, u.Point); err != nil {
			return errors.Wrapf(err, "upsert user %d", u.ID)
		}
		if u.Membership != "" {
			if _, err := tx.Exec(ctx, upsertMembershipSQL, u.ID, u.Membership); err != nil {
				return errors.Wrapf(err, "upsert membership %d", u.ID)
			}
		}
		if u.Token != "" {
			if err := tokens.Insert(ctx, auth.TokenInfo{
				TokenHash: handler.TokenHash(pepper, u.Token),
				UserID:    u.ID,
			}); err != nil {
				return errors.Wrapf(err, "insert token for user %d", u.ID)
			}
		}
		lg.Info("Upserted user", zap.Int64("id", u.ID), zap.String("role", role))
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, tx pgx.Tx, products []seedProduct) error {
	for _, p := range products {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.BasePrice, p.SalePrice, p.Stock); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.ID)
		}
		for _, o := range p.Options {
			if _, err := tx.Exec(ctx, upsertOptionSQL, o.ID, p.ID, o.Label, o.PriceAdjustment, o.Stock); err != nil {
				return errors.Wrapf(err, "upsert option %d", o.ID)
			}
		}
		lg.Info("Upserted product", zap.Int64("id", p.ID), zap.String("name", p.Name), zap.Int("options", len(p.Options)))
	}
	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, tx pgx.Tx, c *catalog) error {
	userIDs := make([]int64, 0, len(c.Users))
	for _, u := range c.Users {
		userIDs = append(userIDs, u.ID)
	}
	store := postgres.NewCouponStore(tx)

	for _, cp := range c.Coupons {
		if _, err := tx.Exec(ctx, upsertCouponSQL,
			cp.ID, cp.Name, string(cp.DiscountType), cp.Value,
			cp.MinOrderAmount, cp.MaxDiscountAmount, cp.UsageLimit,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %d", cp.ID)
		}
		var granted int64
		if cp.GrantAll {
			n, err := store.Grant(ctx, cp.ID, userIDs)
			if err != nil {
				return err
			}
			granted = n
		}
		lg.Info("Upserted coupon", zap.Int64("id", cp.ID), zap.String("name", cp.Name), zap.Int64("granted", granted))
	}
	return nil
}

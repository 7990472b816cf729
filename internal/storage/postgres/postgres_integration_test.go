//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/oralcare-shop/internal/domain/auth"
	"github.com/xenking/oralcare-shop/internal/domain/inventory"
	"github.com/xenking/oralcare-shop/internal/domain/membership"
	"github.com/xenking/oralcare-shop/internal/domain/order"
	"github.com/xenking/oralcare-shop/internal/domain/payment"
	"github.com/xenking/oralcare-shop/internal/domain/point"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	err = dc.
		WaitForService("postgres", wait.ForListeningPort("5432/tcp")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	pg, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	return m.Run()
}

type seeded struct {
	userID     int64
	productID  int64
	optionID   int64
	userCoupon int64
}

func seed(t *testing.T, stock int) seeded {
	t.Helper()
	ctx := context.Background()
	var s seeded

	email := fmt.Sprintf("%s-%d@example.com", t.Name(), time.Now().UnixNano())
	require.NoError(t, testPool.QueryRow(ctx,
		`INSERT INTO users (email, name, point) VALUES ($1, 'Kim Minji', 5000) RETURNING id`, email,
	).Scan(&s.userID))
	require.NoError(t, testPool.QueryRow(ctx,
		`INSERT INTO products (name, base_price, sale_price, stock) VALUES ('Soft toothbrush', 10000, 8000, $1) RETURNING id`, stock,
	).Scan(&s.productID))
	require.NoError(t, testPool.QueryRow(ctx,
		`INSERT INTO product_options (product_id, label, price_adjustment, stock) VALUES ($1, 'Family pack', 1000, 2) RETURNING id`, s.productID,
	).Scan(&s.optionID))

	var couponID int64
	require.NoError(t, testPool.QueryRow(ctx,
		`INSERT INTO coupons (name, discount_type, discount_value) VALUES ('10%', 'percentage', $1) RETURNING id`,
		decimal.NewFromInt(10),
	).Scan(&couponID))
	n, err := NewCouponStore(testPool).Grant(ctx, couponID, []int64{s.userID, s.userID})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT id FROM user_coupons WHERE user_id = $1`, s.userID,
	).Scan(&s.userCoupon))
	return s
}

func newOrderService(t *testing.T) *order.Service {
	t.Helper()
	svc, err := order.NewService(
		New(testPool).OrderTransactor(),
		NewProductRepository(testPool),
		NewCouponStore(testPool),
		NewPointStore(testPool),
	)
	require.NoError(t, err)
	return svc
}

func stockOf(t *testing.T, table string, id int64) int {
	t.Helper()
	var stock int
	require.NoError(t, testPool.QueryRow(context.Background(),
		`SELECT stock FROM `+table+` WHERE id = $1`, id).Scan(&stock))
	return stock
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := seed(t, 10)
	svc := newOrderService(t)

	o, err := svc.Create(ctx, order.CreateRequest{
		CheckoutRequest: order.CheckoutRequest{
			Buyer: order.Buyer{UserID: s.userID, Discounted: true},
			Items: []inventory.Request{
				{ProductID: s.productID, Quantity: 2},
				{ProductID: s.productID, OptionID: &s.optionID, Quantity: 1},
			},
			UserCouponID: &s.userCoupon,
			UsePoint:     1500,
		},
		Recipient: order.Recipient{Name: "Kim Minji", Phone: "010-1234-5678", Zipcode: "04524", Address: "Seoul"},
	})
	require.NoError(t, err)

	// 2 x 5600 + 6300 = 17500; 10% coupon 1750; 1500 points; 14250 + 2500.
	assert.Equal(t, int64(25000), o.TotalAmount)
	assert.Equal(t, int64(1750), o.CouponDiscount)
	assert.Equal(t, int64(16750), o.PayableAmount())
	assert.Equal(t, 8, stockOf(t, "products", s.productID))
	assert.Equal(t, 1, stockOf(t, "product_options", s.optionID))

	got, err := svc.Get(ctx, s.userID, o.Number)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Family pack", got.Items[1].OptionLabel)
	assert.Equal(t, int64(6300), got.Items[1].UnitPrice)

	balance, err := NewPointStore(testPool).Balance(ctx, s.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), balance)

	// Unpaid orders never reach the PSP.
	payments, err := payment.NewService(New(testPool).PaymentTransactor(), nil)
	require.NoError(t, err)
	_, err = payments.Cancel(ctx, s.userID, o.Number, "test")
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, "products", s.productID))
	assert.Equal(t, 2, stockOf(t, "product_options", s.optionID))

	balance, err = NewPointStore(testPool).Balance(ctx, s.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	uc, err := NewCouponStore(testPool).GetUserCoupon(ctx, s.userID, s.userCoupon)
	require.NoError(t, err)
	assert.False(t, uc.Used)
	assert.Zero(t, uc.Coupon.UsedCount)

	_, err = payments.Cancel(ctx, s.userID, o.Number, "again")
	require.ErrorIs(t, err, order.ErrInvalidState)

	var entries int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT count(*) FROM point_history WHERE user_id = $1`, s.userID).Scan(&entries))
	assert.Equal(t, 2, entries)
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	ctx := context.Background()
	s := seed(t, 3)
	svc := newOrderService(t)

	const buyers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  int
		soldOut int
	)
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, order.CreateRequest{
				CheckoutRequest: order.CheckoutRequest{
					Buyer: order.Buyer{UserID: s.userID},
					Items: []inventory.Request{{ProductID: s.productID, Quantity: 1}},
				},
				Recipient: order.Recipient{Name: "Kim Minji", Phone: "010", Zipcode: "04524", Address: "Seoul"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case assert.ErrorIs(t, err, inventory.ErrOutOfStock):
				soldOut++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
	assert.Equal(t, buyers-3, soldOut)
	assert.Zero(t, stockOf(t, "products", s.productID))
}

func TestPointStore_NeverNegative(t *testing.T) {
	ctx := context.Background()
	s := seed(t, 1)

	err := New(testPool).Run(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := point.Apply(ctx, tx.Points(), s.userID, -6000, point.ReasonGrant, nil)
		return err
	})
	require.ErrorIs(t, err, point.ErrInsufficientBalance)

	balance, err := NewPointStore(testPool).Balance(ctx, s.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
}

func TestMembershipRepository(t *testing.T) {
	ctx := context.Background()
	s := seed(t, 1)
	svc := membership.NewService(NewMembershipRepository(testPool), membership.DefaultValidity)

	discounted, err := svc.Discounted(ctx, s.userID)
	require.NoError(t, err)
	assert.False(t, discounted)

	require.ErrorIs(t, svc.Reject(ctx, s.userID), membership.ErrInvalidTransition)
	require.NoError(t, svc.Apply(ctx, s.userID))
	_, err = svc.Approve(ctx, s.userID)
	require.NoError(t, err)

	discounted, err = svc.Discounted(ctx, s.userID)
	require.NoError(t, err)
	assert.True(t, discounted)
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	s := seed(t, 1)
	repo := NewTokenRepository(testPool)

	hash := fmt.Sprintf("hash-%d", s.userID)
	require.NoError(t, repo.Insert(ctx, auth.TokenInfo{TokenHash: hash, UserID: s.userID}))

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, s.userID, info.UserID)
	assert.Equal(t, auth.RoleUser, info.Role)

	_, err = repo.FindByHash(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/oralcare-shop/internal/domain/order"
)

const (
	orderColumns = `id, order_number, user_id,
		recipient_name, recipient_phone, zipcode, address, address_detail, delivery_memo,
		total_amount, discount_amount, membership_discount, coupon_discount,
		shipping_fee, used_point, earned_point, user_coupon_id,
		status, cancel_reason, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (order_number, user_id,
			recipient_name, recipient_phone, zipcode, address, address_detail, delivery_memo,
			total_amount, discount_amount, membership_discount, coupon_discount,
			shipping_fee, used_point, earned_point, user_coupon_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (order_number) DO NOTHING
		RETURNING id, created_at, updated_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, option_id, product_name, option_label,
			base_price, sale_price, option_adjustment, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	getOrderItemsSQL = `SELECT id, order_id, product_id, option_id, product_name, option_label,
			base_price, sale_price, option_adjustment, unit_price, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	transitionOrderSQL = `UPDATE orders
		SET status = $3,
			cancel_reason = CASE WHEN $4 = '' THEN cancel_reason ELSE $4 END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($2)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	q DBTX
}

// Insert stores o and its items. A taken order number reports false.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) (bool, error) {
	rc := o.Recipient
	err := r.q.QueryRow(ctx, insertOrderSQL,
		o.Number, o.UserID,
		rc.Name, rc.Phone, rc.Zipcode, rc.Address, rc.AddressDetail, rc.DeliveryMemo,
		o.TotalAmount, o.DiscountAmount, o.MembershipDiscount, o.CouponDiscount,
		o.ShippingFee, o.UsedPoint, o.EarnedPoint, o.UserCouponID, string(o.Status),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, errors.Wrapf(err, "insert order %s", o.Number)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := r.q.QueryRow(ctx, insertOrderItemSQL,
			o.ID, it.ProductID, it.OptionID, it.ProductName, it.OptionLabel,
			it.BasePrice, it.SalePrice, it.OptionAdjustment, it.UnitPrice, it.Quantity,
		).Scan(&it.ID)
		if err != nil {
			return false, errors.Wrapf(err, "insert item of order %s", o.Number)
		}
	}
	return true, nil
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, number)
}

func (r *OrderRepository) LockByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, lockOrderSQL, number)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, number string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, number)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", number)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", number)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listOrdersSQL, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) Transition(ctx context.Context, orderID int64, from []order.Status, to order.Status, reason string) (bool, error) {
	expected := make([]string, len(from))
	for i, s := range from {
		expected[i] = string(s)
	}
	tag, err := r.q.Exec(ctx, transitionOrderSQL, orderID, expected, string(to), reason)
	if err != nil {
		return false, errors.Wrapf(err, "transition order %d", orderID)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, getOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "get order items")
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return errors.Wrap(err, "get order items")
	}
	for _, it := range items {
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		rc     = &o.Recipient
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID,
		&rc.Name, &rc.Phone, &rc.Zipcode, &rc.Address, &rc.AddressDetail, &rc.DeliveryMemo,
		&o.TotalAmount, &o.DiscountAmount, &o.MembershipDiscount, &o.CouponDiscount,
		&o.ShippingFee, &o.UsedPoint, &o.EarnedPoint, &o.UserCouponID,
		&status, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.OptionID, &it.ProductName, &it.OptionLabel,
		&it.BasePrice, &it.SalePrice, &it.OptionAdjustment, &it.UnitPrice, &it.Quantity,
	)
	return it, err
}

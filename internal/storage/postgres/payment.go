package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/oralcare-shop/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (order_id, payment_key, method, amount, status, approved_at,
			receipt_url, card_company, card_number, easy_pay_provider,
			va_account_number, va_bank_code, va_customer_name, va_due_date, secret, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`

	getPaymentByOrderSQL = `SELECT id, order_id, payment_key, method, amount, status, approved_at,
			receipt_url, card_company, card_number, easy_pay_provider,
			va_account_number, va_bank_code, va_customer_name, va_due_date, secret, raw, created_at
		FROM payments WHERE order_id = $1
		ORDER BY id DESC LIMIT 1`

	setPaymentStatusSQL = `UPDATE payments
		SET status = $3, approved_at = COALESCE($4, approved_at)
		WHERE id = $1 AND status = $2`

	insertRefundSQL = `INSERT INTO refunds (order_id, payment_id, amount, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository.
type PaymentRepository struct {
	q DBTX
}

func (r *PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	var va payment.VirtualAccount
	if p.VirtualAccount != nil {
		va = *p.VirtualAccount
	}
	var raw []byte
	if len(p.Raw) > 0 {
		raw = p.Raw
	}
	err := r.q.QueryRow(ctx, insertPaymentSQL,
		p.OrderID, p.PaymentKey, p.Method, p.Amount, string(p.Status), p.ApprovedAt,
		p.ReceiptURL, p.CardCompany, p.CardNumber, p.EasyPayProvider,
		va.AccountNumber, va.BankCode, va.CustomerName, va.DueDate, p.Secret, raw,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert payment %s", p.PaymentKey)
	}
	return nil
}

func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID int64) (*payment.Payment, error) {
	var (
		p      payment.Payment
		va     payment.VirtualAccount
		status string
	)
	err := r.q.QueryRow(ctx, getPaymentByOrderSQL, orderID).Scan(
		&p.ID, &p.OrderID, &p.PaymentKey, &p.Method, &p.Amount, &status, &p.ApprovedAt,
		&p.ReceiptURL, &p.CardCompany, &p.CardNumber, &p.EasyPayProvider,
		&va.AccountNumber, &va.BankCode, &va.CustomerName, &va.DueDate, &p.Secret, &p.Raw, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get payment of order %d", orderID)
	}
	p.Status = payment.Status(status)
	if va.AccountNumber != "" {
		p.VirtualAccount = &va
	}
	return &p, nil
}

func (r *PaymentRepository) SetStatus(ctx context.Context, paymentID int64, from, to payment.Status, approvedAt *time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, setPaymentStatusSQL, paymentID, string(from), string(to), approvedAt)
	if err != nil {
		return false, errors.Wrapf(err, "set payment %d status", paymentID)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepository) InsertRefund(ctx context.Context, ref *payment.Refund) error {
	err := r.q.QueryRow(ctx, insertRefundSQL, ref.OrderID, ref.PaymentID, ref.Amount, ref.Reason).
		Scan(&ref.ID, &ref.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert refund of order %d", ref.OrderID)
	}
	return nil
}

package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/oralcare-shop/internal/domain/point"
)

const (
	lockBalanceSQL = `SELECT point FROM users WHERE id = $1 FOR UPDATE`

	setBalanceSQL = `UPDATE users SET point = $2 WHERE id = $1`

	appendPointSQL = `INSERT INTO point_history (user_id, delta, balance_after, reason, order_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
)

// ErrUserNotFound is returned when a balance is read for a missing user.
var ErrUserNotFound = errors.New("user not found")

var _ point.Store = (*PointStore)(nil)

// PointStore implements point.Store on users.point and point_history.
type PointStore struct {
	q DBTX
}

// NewPointStore returns a PointStore that uses q.
func NewPointStore(q DBTX) *PointStore {
	return &PointStore{q: q}
}

func (s *PointStore) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	if err := s.q.QueryRow(ctx, lockBalanceSQL, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, errors.Wrapf(err, "balance of user %d", userID)
	}
	return balance, nil
}

func (s *PointStore) Append(ctx context.Context, e point.Entry) (point.Entry, error) {
	if _, err := s.q.Exec(ctx, setBalanceSQL, e.UserID, e.BalanceAfter); err != nil {
		return point.Entry{}, errors.Wrap(err, "set balance")
	}
	err := s.q.QueryRow(ctx, appendPointSQL,
		e.UserID, e.Delta, e.BalanceAfter, string(e.Reason), e.OrderID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return point.Entry{}, errors.Wrap(err, "insert point history")
	}
	return e, nil
}

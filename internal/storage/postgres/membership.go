package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/oralcare-shop/internal/domain/membership"
)

const (
	getMembershipSQL = `SELECT status, expires_at FROM memberships WHERE user_id = $1`

	// Users without a row are treated as status 'none'; the upsert creates
	// the row on their first transition.
	transitionMembershipSQL = `INSERT INTO memberships AS m (user_id, status, expires_at, updated_at)
		SELECT $1, $3, $4, now()
		WHERE 'none' = ANY($2) OR EXISTS (SELECT 1 FROM memberships WHERE user_id = $1)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status,
			expires_at = COALESCE(EXCLUDED.expires_at, m.expires_at),
			updated_at = now()
		WHERE m.status = ANY($2)`
)

var _ membership.Repository = (*MembershipRepository)(nil)

// MembershipRepository implements membership.Repository.
type MembershipRepository struct {
	q DBTX
}

// NewMembershipRepository returns a MembershipRepository that uses q.
func NewMembershipRepository(q DBTX) *MembershipRepository {
	return &MembershipRepository{q: q}
}

func (r *MembershipRepository) Get(ctx context.Context, userID int64) (membership.Membership, error) {
	m := membership.Membership{UserID: userID, Status: membership.StatusNone}
	var status string
	err := r.q.QueryRow(ctx, getMembershipSQL, userID).Scan(&status, &m.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, nil
		}
		return membership.Membership{}, errors.Wrapf(err, "get membership of user %d", userID)
	}
	m.Status = membership.Status(status)
	return m, nil
}

func (r *MembershipRepository) Transition(ctx context.Context, userID int64, from []membership.Status, to membership.Status, expiresAt *time.Time) (bool, error) {
	expected := make([]string, len(from))
	for i, s := range from {
		expected[i] = string(s)
	}
	tag, err := r.q.Exec(ctx, transitionMembershipSQL, userID, expected, string(to), expiresAt)
	if err != nil {
		return false, errors.Wrapf(err, "transition membership of user %d", userID)
	}
	return tag.RowsAffected() == 1, nil
}

package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/oralcare-shop/internal/domain/auth"
)

const (
	getTokenByHashSQL = `SELECT t.token_hash, t.user_id, u.role, t.expires_at
		FROM user_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1`

	insertTokenSQL = `INSERT INTO user_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO NOTHING`
)

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository provides token lookups.
type TokenRepository struct {
	q DBTX
}

// NewTokenRepository returns a TokenRepository that uses q.
func NewTokenRepository(q DBTX) *TokenRepository {
	return &TokenRepository{q: q}
}

// FindByHash looks up a token by its HMAC-SHA256 hash.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*auth.TokenInfo, error) {
	var (
		info auth.TokenInfo
		role string
	)
	err := r.q.QueryRow(ctx, getTokenByHashSQL, hash).Scan(&info.TokenHash, &info.UserID, &role, &info.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find token by hash")
	}
	info.Role = auth.Role(role)
	return &info, nil
}

// Insert stores a token hash for userID.
func (r *TokenRepository) Insert(ctx context.Context, info auth.TokenInfo) error {
	if _, err := r.q.Exec(ctx, insertTokenSQL, info.TokenHash, info.UserID, info.ExpiresAt); err != nil {
		return errors.Wrap(err, "insert token")
	}
	return nil
}

// Package auth resolves bearer tokens to the calling user.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Role of an authenticated user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var (
	// ErrUnauthorized is returned for missing, unknown or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// TokenInfo is a stored access token, keyed by its HMAC hash.
type TokenInfo struct {
	TokenHash string
	UserID    int64
	Role      Role
	ExpiresAt *time.Time
}

// Expired reports whether the token is no longer valid at now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// Repository provides lookup of tokens by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*TokenInfo, error)
}

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the principal may use admin operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

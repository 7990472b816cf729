package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oralcare-shop/internal/domain/auth"
)

// TokenHash returns the hex HMAC-SHA256 of a bearer token under pepper.
// Tokens are stored only in this form.
func TokenHash(pepper []byte, token string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves bearer tokens to principals.
type Authenticator struct {
	tokens auth.Repository
	pepper []byte
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator with the given token
// repository and HMAC pepper.
func NewAuthenticator(tokens auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		pepper: pepper,
		now:    time.Now,
	}
}

// Authenticate computes the HMAC of the token, looks it up and compares
// the stored hash in constant time.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	if token == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(token))
	hash := mac.Sum(nil)

	info, err := a.tokens.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return auth.Principal{}, err
		}
		return auth.Principal{}, errors.Wrap(err, "find token")
	}
	stored, err := hex.DecodeString(info.TokenHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	if info.Expired(a.now()) {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return auth.Principal{UserID: info.UserID, Role: info.Role}, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// requireUser rejects requests without a valid bearer token and stores
// the principal in the request context.
func (a *Authenticator) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.Int64("user_id", p.UserID))
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin is requireUser restricted to the admin role.
func (a *Authenticator) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.requireUser(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		if !p.IsAdmin() {
			writeError(w, r, auth.ErrForbidden)
			return
		}
		next(w, r)
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

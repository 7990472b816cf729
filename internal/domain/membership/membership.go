// Package membership tracks the Ddcare discount programme for vulnerable
// customer groups.
package membership

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of a membership application.
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// ErrInvalidTransition is returned when an operation is not allowed from the
// membership's current status.
var ErrInvalidTransition = errors.New("invalid membership transition")

// Membership is the per-user Ddcare state.
type Membership struct {
	UserID    int64
	Status    Status
	ExpiresAt *time.Time
}

// Effective returns the status as observed at now: an approved membership
// whose expiry has passed reads as expired.
func (m Membership) Effective(now time.Time) Status {
	if m.Status == StatusApproved && (m.ExpiresAt == nil || !now.Before(*m.ExpiresAt)) {
		return StatusExpired
	}
	return m.Status
}

// Discounted reports whether the membership discount applies at now.
func (m Membership) Discounted(now time.Time) bool {
	return m.Effective(now) == StatusApproved
}

// Repository persists membership state. Transition is a compare-and-set and
// reports false when the stored status is not one of from.
type Repository interface {
	Get(ctx context.Context, userID int64) (Membership, error)
	Transition(ctx context.Context, userID int64, from []Status, to Status, expiresAt *time.Time) (bool, error)
}

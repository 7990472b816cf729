package membership

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// DefaultValidity is how long an approval lasts unless configured otherwise.
const DefaultValidity = 365 * 24 * time.Hour

// Service derives the discount flag and drives admin review.
type Service struct {
	repo     Repository
	validity time.Duration
	now      func() time.Time
}

// NewService creates a Service. A non-positive validity falls back to
// DefaultValidity.
func NewService(repo Repository, validity time.Duration) *Service {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Service{repo: repo, validity: validity, now: time.Now}
}

// Resolve returns the membership as of now, persisting the approved → expired
// transition when the expiry has passed.
func (s *Service) Resolve(ctx context.Context, userID int64) (Membership, error) {
	m, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Membership{}, errors.Wrap(err, "get membership")
	}

	if m.Status == StatusApproved && m.Effective(s.now()) == StatusExpired {
		if _, err := s.repo.Transition(ctx, userID, []Status{StatusApproved}, StatusExpired, m.ExpiresAt); err != nil {
			return Membership{}, errors.Wrap(err, "expire membership")
		}
		zctx.From(ctx).Info("Membership expired", zap.Int64("user_id", userID))
		m.Status = StatusExpired
	}
	return m, nil
}

// Discounted reports whether userID currently receives the membership discount.
func (s *Service) Discounted(ctx context.Context, userID int64) (bool, error) {
	m, err := s.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return m.Discounted(s.now()), nil
}

// Apply submits an application for review.
func (s *Service) Apply(ctx context.Context, userID int64) error {
	return s.transition(ctx, userID, []Status{StatusNone, StatusRejected, StatusExpired}, StatusPending, nil)
}

// Approve grants the membership for the configured validity period.
func (s *Service) Approve(ctx context.Context, userID int64) (time.Time, error) {
	expiresAt := s.now().Add(s.validity)
	if err := s.transition(ctx, userID, []Status{StatusPending}, StatusApproved, &expiresAt); err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

// Reject declines a pending application.
func (s *Service) Reject(ctx context.Context, userID int64) error {
	return s.transition(ctx, userID, []Status{StatusPending}, StatusRejected, nil)
}

func (s *Service) transition(ctx context.Context, userID int64, from []Status, to Status, expiresAt *time.Time) error {
	if _, err := s.Resolve(ctx, userID); err != nil {
		return err
	}
	ok, err := s.repo.Transition(ctx, userID, from, to, expiresAt)
	if err != nil {
		return errors.Wrapf(err, "membership %s", to)
	}
	if !ok {
		return errors.Wrapf(ErrInvalidTransition, "to %s (allowed from %v)", to, from)
	}
	return nil
}

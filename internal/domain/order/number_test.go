package order

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNumber(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	re := regexp.MustCompile(`^20250615-[A-Z2-7]{10}$`)

	seen := make(map[string]struct{})
	for range 100 {
		n := NewNumber(now)
		require.Regexp(t, re, n)
		seen[n] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

type collidingRepo struct {
	Repository
	collisions int
	tried      []string
}

func (r *collidingRepo) Insert(_ context.Context, o *Order) (bool, error) {
	r.tried = append(r.tried, o.Number)
	if len(r.tried) <= r.collisions {
		return false, nil
	}
	o.ID = 1
	return true, nil
}

func TestService_insertRetriesOnCollision(t *testing.T) {
	s := &Service{now: time.Now}

	t.Run("succeeds after collisions", func(t *testing.T) {
		repo := &collidingRepo{collisions: 2}
		o := &Order{}
		require.NoError(t, s.insert(context.Background(), repo, o))
		assert.Len(t, repo.tried, 3)
		assert.Equal(t, repo.tried[2], o.Number)
		assert.Equal(t, int64(1), o.ID)
	})

	t.Run("gives up", func(t *testing.T) {
		repo := &collidingRepo{collisions: maxNumberAttempts}
		err := s.insert(context.Background(), repo, &Order{})
		require.ErrorIs(t, err, ErrNumberExhausted)
		assert.Len(t, repo.tried, maxNumberAttempts)
	})
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from Status
		set  []Status
		want bool
	}{
		{StatusPending, CancellableFrom, true},
		{StatusPaid, CancellableFrom, true},
		{StatusPreparing, CancellableFrom, false},
		{StatusPending, RefundableFrom, false},
		{StatusDelivered, RefundableFrom, true},
		{StatusCompleted, RefundableFrom, false},
		{StatusDelivered, CompletableFrom, true},
	}
	for _, tt := range tests {
		o := &Order{Status: tt.from}
		assert.Equal(t, tt.want, o.In(tt.set...), "%s in %v", tt.from, tt.set)
	}
}

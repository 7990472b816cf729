package membership

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	m           Membership
	transitions []Status
}

func (r *mockRepo) Get(_ context.Context, userID int64) (Membership, error) {
	m := r.m
	m.UserID = userID
	return m, nil
}

func (r *mockRepo) Transition(_ context.Context, _ int64, from []Status, to Status, expiresAt *time.Time) (bool, error) {
	if !slices.Contains(from, r.m.Status) {
		return false, nil
	}
	r.m.Status = to
	r.m.ExpiresAt = expiresAt
	r.transitions = append(r.transitions, to)
	return true, nil
}

func TestMembership_Effective(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	assert.Equal(t, StatusApproved, Membership{Status: StatusApproved, ExpiresAt: &later}.Effective(now))
	assert.Equal(t, StatusExpired, Membership{Status: StatusApproved, ExpiresAt: &now}.Effective(now))
	assert.Equal(t, StatusExpired, Membership{Status: StatusApproved}.Effective(now))
	assert.Equal(t, StatusPending, Membership{Status: StatusPending}.Effective(now))
	assert.False(t, Membership{Status: StatusRejected}.Discounted(now))
}

func TestService_DiscountedExpiresOnRead(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	repo := &mockRepo{m: Membership{Status: StatusApproved, ExpiresAt: &past}}

	svc := NewService(repo, 0)
	svc.now = func() time.Time { return now }

	ok, err := svc.Discounted(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StatusExpired, repo.m.Status)
	assert.Equal(t, []Status{StatusExpired}, repo.transitions)
}

func TestService_ApproveFlow(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{m: Membership{Status: StatusNone}}

	svc := NewService(repo, 30*24*time.Hour)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, svc.Apply(ctx, 1))
	expiresAt, err := svc.Approve(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*24*time.Hour), expiresAt)

	ok, err := svc.Discounted(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	err = svc.Reject(ctx, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

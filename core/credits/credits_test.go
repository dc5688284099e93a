package credits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type awardKey struct{ instanceID, userID int }

type fakeRepo struct {
	nextID int64
	awards map[awardKey]Award
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{awards: make(map[awardKey]Award)}
}

func (r *fakeRepo) HasAward(_ context.Context, instanceID, userID int) (bool, error) {
	_, ok := r.awards[awardKey{instanceID, userID}]
	return ok, nil
}

func (r *fakeRepo) CreateAward(_ context.Context, award *Award) error {
	r.nextID++
	award.ID = r.nextID
	r.awards[awardKey{award.InstanceID, award.UserID}] = *award
	return nil
}

func (r *fakeRepo) TotalCredits(_ context.Context, userID int) (float64, error) {
	var total float64
	for _, a := range r.awards {
		if a.UserID == userID {
			total += a.Amount
		}
	}
	return total, nil
}

func (r *fakeRepo) DeleteByInstance(_ context.Context, instanceID int) error {
	for k := range r.awards {
		if k.instanceID == instanceID {
			delete(r.awards, k)
		}
	}
	return nil
}

type fakeBalance struct {
	credits map[int]float64
}

func (b *fakeBalance) AddCredits(_ context.Context, userID int, amount float64) error {
	if b.credits == nil {
		b.credits = make(map[int]float64)
	}
	b.credits[userID] += amount
	return nil
}

func TestAwardOnce(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	balance := &fakeBalance{}
	svc := NewService(repo, balance)
	svc.nowFunc = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	granted, err := svc.AwardOnce(ctx, 1, 7, 5)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 5.0, balance.credits[7])

	// second pass is a no-op
	granted, err = svc.AwardOnce(ctx, 1, 7, 5)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 5.0, balance.credits[7])

	// a different instance grants independently
	granted, err = svc.AwardOnce(ctx, 2, 7, 2.5)
	require.NoError(t, err)
	assert.True(t, granted)

	total, err := svc.TotalCredits(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 7.5, total)
}

func TestAwardOnceIgnoresNonPositiveAmounts(t *testing.T) {
	svc := NewService(newFakeRepo(), &fakeBalance{})

	for _, amount := range []float64{0, -1} {
		granted, err := svc.AwardOnce(context.Background(), 1, 7, amount)
		require.NoError(t, err)
		assert.False(t, granted)
	}
}

func TestDeleteByInstance(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewService(repo, &fakeBalance{})

	_, err := svc.AwardOnce(ctx, 1, 7, 5)
	require.NoError(t, err)
	_, err = svc.AwardOnce(ctx, 2, 7, 5)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByInstance(ctx, 1))

	granted, err := repo.HasAward(ctx, 1, 7)
	require.NoError(t, err)
	assert.False(t, granted)
	granted, err = repo.HasAward(ctx, 2, 7)
	require.NoError(t, err)
	assert.True(t, granted)
}

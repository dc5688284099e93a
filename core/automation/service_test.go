package automation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abinesh-lmsace/pulse/core"
	"github.com/abinesh-lmsace/pulse/core/automation"
)

type fakeCascade struct {
	deleted []int
}

func (c *fakeCascade) DeleteByInstance(_ context.Context, instanceID int) error {
	c.deleted = append(c.deleted, instanceID)
	return nil
}

func TestServiceCreateValidates(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)
	svc := automation.NewService(fix.instances, fix.availability, fix.ledger)

	inst := automation.Instance{
		Name:       "Induction",
		ActivityID: activityID,
		Course:     automation.Course{ID: courseID},
		Reminders: map[automation.ReminderType]automation.ReminderDefinition{
			automation.TypeFirst: firstReminder(roleStudent),
		},
	}
	created, err := svc.Create(ctx, inst)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	inst.ActivityID = 0
	_, err = svc.Create(ctx, inst)
	assert.True(t, core.IsValidationError(err))
}

func TestServiceDeleteCascades(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)
	cascade := &fakeCascade{}
	svc := automation.NewService(fix.instances, fix.availability, fix.ledger, cascade)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent))
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	key := automation.DeliveryKey{InstanceID: inst.ID, UserID: 1, Type: automation.TypeFirst}
	claimed, err := fix.ledger.TryClaim(ctx, key, "tok", time.Now())
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, fix.ledger.Commit(ctx, key, "tok", time.Now()))

	require.NoError(t, svc.Delete(ctx, inst.ID))

	_, err = svc.Get(ctx, inst.ID)
	assert.Equal(t, automation.ErrNotFound, err)

	records, err := fix.ledger.Records(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = fix.availability.Get(ctx, inst.ID, 1)
	assert.Equal(t, automation.ErrNotFound, err)

	assert.Equal(t, []int{inst.ID}, cascade.deleted)
}

package automation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abinesh-lmsace/pulse/core/automation"
	inmemdb "github.com/abinesh-lmsace/pulse/storage/database/inmem"
)

type stubCondition struct {
	name      string
	satisfied bool
}

func (c *stubCondition) Name() string { return c.name }
func (c *stubCondition) IsSatisfied(context.Context, automation.Instance, int) (bool, error) {
	return c.satisfied, nil
}

func newGate(t *testing.T) (*automation.Gate, automation.AvailabilityRepository, *stubCondition) {
	t.Helper()
	db := inmemdb.NewDB()
	availability := inmemdb.NewAvailabilityRepository(db)
	cond := &stubCondition{name: "stub", satisfied: true}
	registry := automation.NewConditionRegistry()
	registry.Register(cond)
	return automation.NewGate(availability, registry), availability, cond
}

func TestGateEvaluate(t *testing.T) {
	ctx := context.Background()
	gate, availability, cond := newGate(t)
	inst := automation.Instance{ID: 1, Conditions: map[string]bool{"stub": true}}

	rec, err := gate.Evaluate(ctx, inst, 1)
	require.NoError(t, err)
	assert.True(t, rec.Available)
	require.False(t, rec.AvailableTime.IsZero())
	firstTime := rec.AvailableTime

	// Re-evaluation keeps the original available time.
	time.Sleep(1100 * time.Millisecond)
	rec, err = gate.Evaluate(ctx, inst, 1)
	require.NoError(t, err)
	assert.True(t, rec.AvailableTime.Equal(firstTime))

	// A regressed condition flips the flag but the time survives.
	cond.satisfied = false
	rec, err = gate.Evaluate(ctx, inst, 1)
	require.NoError(t, err)
	assert.False(t, rec.Available)

	stored, err := availability.Get(ctx, inst.ID, 1)
	require.NoError(t, err)
	assert.False(t, stored.Available)
	assert.True(t, stored.AvailableTime.Equal(firstTime))
}

func TestGateEvaluateNoConditions(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newGate(t)

	tests := []struct {
		name string
		inst automation.Instance
	}{
		{name: "no conditions configured", inst: automation.Instance{ID: 1}},
		{name: "all conditions disabled", inst: automation.Instance{ID: 2, Conditions: map[string]bool{"stub": false}}},
		{name: "unknown condition skipped", inst: automation.Instance{ID: 3, Conditions: map[string]bool{"not-installed": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := gate.Evaluate(ctx, tt.inst, 1)
			require.NoError(t, err)
			assert.True(t, rec.Available)
		})
	}
}

func TestGateEvaluateNeverSatisfied(t *testing.T) {
	ctx := context.Background()
	gate, _, cond := newGate(t)
	cond.satisfied = false
	inst := automation.Instance{ID: 1, Conditions: map[string]bool{"stub": true}}

	rec, err := gate.Evaluate(ctx, inst, 1)
	require.NoError(t, err)
	assert.False(t, rec.Available)
	assert.True(t, rec.AvailableTime.IsZero())
}

func TestGateHandleEnrolment(t *testing.T) {
	ctx := context.Background()
	gate, availability, _ := newGate(t)

	instances := []automation.Instance{
		{ID: 1, Course: automation.Course{ID: 10}},
		{ID: 2, Course: automation.Course{ID: 20}},
	}
	ev := automation.EnrolmentEvent{CourseID: 10, UserID: 7, RoleID: 5}
	require.NoError(t, gate.HandleEnrolment(ctx, ev, instances))

	rec, err := availability.Get(ctx, 1, 7)
	require.NoError(t, err)
	assert.True(t, rec.Available)

	// The other course's instance is untouched.
	_, err = availability.Get(ctx, 2, 7)
	assert.Equal(t, automation.ErrNotFound, err)
}

func TestResolveAudienceNoRecipients(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx)
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})

	resolver := automation.NewResolver(fix.membership, fix.ledger, fix.gate, fix.conf.TaskLimitUsers)
	def := automation.ReminderDefinition{Type: automation.TypeFirst, Enabled: true, Schedule: automation.ScheduleRelative}
	audience, err := resolver.ResolveAudience(ctx, inst, def)
	require.NoError(t, err)
	assert.True(t, audience.Empty())
}

func TestResolveAudienceDelegateAlreadyNotified(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent, roleTeacher))
	sam := automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"}
	sky := automation.User{ID: 2, FirstName: "Sky", Email: "sky@example.com"}
	fix.addStudent(t, ctx, inst.ID, sam)
	fix.addStudent(t, ctx, inst.ID, sky)

	teacher := automation.User{ID: 3, FirstName: "Tess", Email: "tess@example.com"}
	fix.membership.AddUser(teacher)
	fix.membership.AssignCourseRole(roleTeacher, teacher.ID, courseID)

	// The teacher already heard about Sam on an earlier pass.
	key := automation.DeliveryKey{InstanceID: inst.ID, UserID: teacher.ID, Type: automation.TypeFirst, ForUserID: sam.ID}
	claimed, err := fix.ledger.TryClaim(ctx, key, "tok", time.Now())
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, fix.ledger.Commit(ctx, key, "tok", time.Now()))

	audience, err := fix.resolver.ResolveAudience(ctx, inst, inst.Reminders[automation.TypeFirst])
	require.NoError(t, err)
	require.Len(t, audience.Teachers, 1)
	require.Len(t, audience.Teachers[0].Students, 1)
	assert.Equal(t, sky.ID, audience.Teachers[0].Students[0].ID)
}

func TestResolveAudienceBatchLimit(t *testing.T) {
	ctx := context.Background()
	fix := newEngine(t)

	inst := fix.createInstance(t, ctx, firstReminder(roleStudent, roleTeacher))
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 1, FirstName: "Sam", Email: "sam@example.com"})
	fix.addStudent(t, ctx, inst.ID, automation.User{ID: 2, FirstName: "Sky", Email: "sky@example.com"})

	t1 := automation.User{ID: 3, FirstName: "Tess", Email: "tess@example.com"}
	t2 := automation.User{ID: 4, FirstName: "Theo", Email: "theo@example.com"}
	for _, u := range []automation.User{t1, t2} {
		fix.membership.AddUser(u)
		fix.membership.AssignCourseRole(roleTeacher, u.ID, courseID)
	}

	resolver := automation.NewResolver(fix.membership, fix.ledger, fix.gate, 1)
	def := inst.Reminders[automation.TypeFirst]
	audience, err := resolver.ResolveAudience(ctx, inst, def)
	require.NoError(t, err)

	// The pool itself is capped at the batch limit.
	require.Len(t, audience.Direct, 1)
	assert.Equal(t, 1, audience.Direct[0].ID)

	// Past the limit, later delegates keep an empty student list this pass.
	require.Len(t, audience.Teachers, 2)
	assert.Len(t, audience.Teachers[0].Students, 1)
	assert.Empty(t, audience.Teachers[1].Students)
}

package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

type fakeSources struct {
	enrolled  map[int]bool // userID -> enrolled
	completed map[int]bool // userID -> completed all watched activities
	booked    map[int]bool // userID -> has booked session
}

func (f *fakeSources) IsEnrolled(_ context.Context, _, userID int) (bool, error) {
	return f.enrolled[userID], nil
}

func (f *fakeSources) CompletedActivities(_ context.Context, _, userID int, _ []int) (bool, error) {
	return f.completed[userID], nil
}

func (f *fakeSources) HasBookedSession(_ context.Context, _, userID int) (bool, error) {
	return f.booked[userID], nil
}

func TestDefaultRegistry(t *testing.T) {
	src := &fakeSources{}
	reg := DefaultRegistry(src, src, src)

	for _, name := range []string{Enrolment, Activity, Session} {
		cond, ok := reg.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, cond.Name())
	}
}

func TestEnrolmentCondition(t *testing.T) {
	src := &fakeSources{enrolled: map[int]bool{1: true}}
	cond := NewEnrolmentCondition(src)
	inst := automation.Instance{Course: automation.Course{ID: 10}}

	ok, err := cond.IsSatisfied(context.Background(), inst, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cond.IsSatisfied(context.Background(), inst, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActivityCondition(t *testing.T) {
	src := &fakeSources{completed: map[int]bool{1: true}}
	cond := NewActivityCondition(src)

	tests := []struct {
		name   string
		inst   automation.Instance
		userID int
		want   bool
	}{
		{
			name:   "completed all watched activities",
			inst:   automation.Instance{WatchActivities: []int{5, 6}},
			userID: 1,
			want:   true,
		},
		{
			name:   "incomplete",
			inst:   automation.Instance{WatchActivities: []int{5, 6}},
			userID: 2,
			want:   false,
		},
		{
			name:   "no watched activities is vacuously satisfied",
			inst:   automation.Instance{},
			userID: 2,
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := cond.IsSatisfied(context.Background(), tt.inst, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestSessionCondition(t *testing.T) {
	src := &fakeSources{booked: map[int]bool{1: true}}
	cond := NewSessionCondition(src)
	inst := automation.Instance{ActivityID: 42}

	ok, err := cond.IsSatisfied(context.Background(), inst, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cond.IsSatisfied(context.Background(), inst, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

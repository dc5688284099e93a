// Package condition provides the pluggable availability predicates evaluated
// by the automation gate: enrolment, activity completion and session booking.
// Each predicate reads the host platform through a narrow source interface so
// storage backends stay swappable.
package condition

import (
	"context"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

// Condition names, as stored on instance condition sets.
const (
	Enrolment = "enrolment"
	Activity  = "activity"
	Session   = "session"
)

type (
	// EnrolmentSource answers whether a user has an active enrolment.
	EnrolmentSource interface {
		IsEnrolled(ctx context.Context, courseID, userID int) (bool, error)
	}

	// CompletionSource answers whether a user completed a set of activities.
	CompletionSource interface {
		CompletedActivities(ctx context.Context, courseID, userID int, activityIDs []int) (bool, error)
	}

	// SessionSource answers whether a user holds a booked session for an
	// activity.
	SessionSource interface {
		HasBookedSession(ctx context.Context, activityID, userID int) (bool, error)
	}
)

// DefaultRegistry wires the three shipped conditions into a registry.
func DefaultRegistry(enrol EnrolmentSource, completion CompletionSource, sessions SessionSource) *automation.ConditionRegistry {
	reg := automation.NewConditionRegistry()
	reg.Register(NewEnrolmentCondition(enrol))
	reg.Register(NewActivityCondition(completion))
	reg.Register(NewSessionCondition(sessions))
	return reg
}

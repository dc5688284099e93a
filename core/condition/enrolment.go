package condition

import (
	"context"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

// enrolmentCondition holds as soon as the user has an active enrolment in the
// instance's course.
type enrolmentCondition struct {
	source EnrolmentSource
}

func NewEnrolmentCondition(source EnrolmentSource) automation.Condition {
	return &enrolmentCondition{source: source}
}

func (c *enrolmentCondition) Name() string { return Enrolment }

func (c *enrolmentCondition) IsSatisfied(ctx context.Context, inst automation.Instance, userID int) (bool, error) {
	return c.source.IsEnrolled(ctx, inst.Course.ID, userID)
}

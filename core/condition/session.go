package condition

import (
	"context"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

// sessionCondition holds once the user has booked a session on the instance's
// owning activity.
type sessionCondition struct {
	source SessionSource
}

func NewSessionCondition(source SessionSource) automation.Condition {
	return &sessionCondition{source: source}
}

func (c *sessionCondition) Name() string { return Session }

func (c *sessionCondition) IsSatisfied(ctx context.Context, inst automation.Instance, userID int) (bool, error) {
	return c.source.HasBookedSession(ctx, inst.ActivityID, userID)
}

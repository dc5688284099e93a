package condition

import (
	"context"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

// activityCondition holds once the user completed every watched activity of
// the instance. With no watched activities configured it holds vacuously.
type activityCondition struct {
	source CompletionSource
}

func NewActivityCondition(source CompletionSource) automation.Condition {
	return &activityCondition{source: source}
}

func (c *activityCondition) Name() string { return Activity }

func (c *activityCondition) IsSatisfied(ctx context.Context, inst automation.Instance, userID int) (bool, error) {
	if len(inst.WatchActivities) == 0 {
		return true, nil
	}
	return c.source.CompletedActivities(ctx, inst.Course.ID, userID, inst.WatchActivities)
}

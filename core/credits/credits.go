// Package credits awards course credit to users when an automation instance
// fires for them. Awards are recorded per (instance, user) so repeat passes
// never double-credit.
package credits

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type (
	// Award is one recorded credit grant.
	Award struct {
		ID         int64
		InstanceID int
		UserID     int
		Amount     float64
		AwardedAt  time.Time
	}

	Repository interface {
		HasAward(ctx context.Context, instanceID, userID int) (bool, error)
		CreateAward(ctx context.Context, award *Award) error
		TotalCredits(ctx context.Context, userID int) (float64, error)
		DeleteByInstance(ctx context.Context, instanceID int) error
	}

	// Balance mirrors awards onto the host platform's user credit field.
	Balance interface {
		AddCredits(ctx context.Context, userID int, amount float64) error
	}
)

type Service struct {
	repo    Repository
	balance Balance
	nowFunc func() time.Time
}

func NewService(repo Repository, balance Balance) *Service {
	return &Service{repo: repo, balance: balance, nowFunc: time.Now}
}

// AwardOnce grants amount to the user for the instance unless a grant already
// exists. It reports whether a new award was recorded.
func (svc *Service) AwardOnce(ctx context.Context, instanceID, userID int, amount float64) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	granted, err := svc.repo.HasAward(ctx, instanceID, userID)
	if err != nil {
		return false, errors.Wrap(err, "checking existing award")
	}
	if granted {
		return false, nil
	}

	award := Award{
		InstanceID: instanceID,
		UserID:     userID,
		Amount:     amount,
		AwardedAt:  svc.nowFunc(),
	}
	if err = svc.repo.CreateAward(ctx, &award); err != nil {
		return false, errors.Wrap(err, "recording award")
	}
	if err = svc.balance.AddCredits(ctx, userID, amount); err != nil {
		return false, errors.Wrapf(err, "crediting user %d", userID)
	}
	return true, nil
}

// TotalCredits returns the user's accumulated credit across all instances.
func (svc *Service) TotalCredits(ctx context.Context, userID int) (float64, error) {
	return svc.repo.TotalCredits(ctx, userID)
}

// DeleteByInstance removes the award history of a deleted instance. Already
// mirrored balances are left untouched.
func (svc *Service) DeleteByInstance(ctx context.Context, instanceID int) error {
	return svc.repo.DeleteByInstance(ctx, instanceID)
}

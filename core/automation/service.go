package automation

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Cascade is implemented by add-on stores holding per-instance user data
// (reaction tokens, credit transactions, ...) so instance deletion can sweep
// them along with the engine's own rows.
type Cascade interface {
	DeleteByInstance(ctx context.Context, instanceID int) error
}

// Service owns automation instance CRUD. Audience resolution and delivery
// live on their own types; this is the configuration side.
type Service struct {
	repo         InstanceRepository
	availability AvailabilityRepository
	ledger       LedgerRepository
	cascades     []Cascade
}

func NewService(repo InstanceRepository, availability AvailabilityRepository, ledger LedgerRepository, cascades ...Cascade) *Service {
	return &Service{repo: repo, availability: availability, ledger: ledger, cascades: cascades}
}

func (svc *Service) Create(ctx context.Context, inst Instance) (Instance, error) {
	if err := ValidateInstance(inst); err != nil {
		return Instance{}, err
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	return svc.repo.CreateInstance(ctx, inst)
}

func (svc *Service) Update(ctx context.Context, inst Instance) (Instance, error) {
	if err := ValidateInstance(inst); err != nil {
		return Instance{}, err
	}
	inst.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateInstance(ctx, inst)
}

func (svc *Service) Get(ctx context.Context, id int) (Instance, error) {
	return svc.repo.GetInstance(ctx, id)
}

// Delete removes the instance and cascades every per-instance user data
// store: availability, delivery ledger and registered add-on stores.
func (svc *Service) Delete(ctx context.Context, id int) error {
	if err := svc.availability.DeleteByInstance(ctx, id); err != nil {
		return errors.Wrap(err, "deleting availability records")
	}
	if err := svc.ledger.DeleteByInstance(ctx, id); err != nil {
		return errors.Wrap(err, "deleting delivery records")
	}
	for _, c := range svc.cascades {
		if err := c.DeleteByInstance(ctx, id); err != nil {
			return errors.Wrap(err, "cascading add-on data")
		}
	}
	return svc.repo.DeleteInstance(ctx, id)
}

// ResetInvitations clears invitation delivery history so the instance's
// invitations go out again on the next pass (the "resend" setting).
func (svc *Service) ResetInvitations(ctx context.Context, id int) error {
	return svc.ledger.DeleteByInstanceType(ctx, id, TypeInvitation)
}

package automation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Condition is a pluggable availability predicate (enrolment, activity
// completion, session booking, ...). Implementations register themselves on a
// ConditionRegistry.
type Condition interface {
	Name() string
	IsSatisfied(ctx context.Context, inst Instance, userID int) (bool, error)
}

type ConditionRegistry struct {
	mu    sync.RWMutex
	conds map[string]Condition
}

func NewConditionRegistry() *ConditionRegistry {
	return &ConditionRegistry{conds: make(map[string]Condition)}
}

func (r *ConditionRegistry) Register(c Condition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conds[c.Name()] = c
}

func (r *ConditionRegistry) Get(name string) (Condition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conds[name]
	return c, ok
}

// Names returns registered condition names, sorted for deterministic
// evaluation order.
func (r *ConditionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conds))
	for name := range r.conds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Gate evaluates instance conditions per user and owns the availability store.
// Available time is written on the first satisfied evaluation and never reset;
// re-evaluation may only flip the status flag.
type Gate struct {
	availability AvailabilityRepository
	registry     *ConditionRegistry
	nowFunc      func() time.Time
}

func NewGate(availability AvailabilityRepository, registry *ConditionRegistry) *Gate {
	return &Gate{
		availability: availability,
		registry:     registry,
		nowFunc:      time.Now,
	}
}

// Evaluate runs the instance's enabled condition predicates for the user and
// updates the availability record. Idempotent: a user already available keeps
// their original available time.
func (g *Gate) Evaluate(ctx context.Context, inst Instance, userID int) (AvailabilityRecord, error) {
	satisfied, err := g.satisfied(ctx, inst, userID)
	if err != nil {
		return AvailabilityRecord{}, err
	}

	if satisfied {
		rec, err := g.availability.MarkAvailable(ctx, inst.ID, userID, g.nowFunc().Truncate(time.Second))
		if err != nil {
			return AvailabilityRecord{}, errors.Wrap(err, "marking availability")
		}
		return rec, nil
	}

	rec, err := g.availability.Get(ctx, inst.ID, userID)
	if err == ErrNotFound {
		return AvailabilityRecord{InstanceID: inst.ID, UserID: userID}, nil
	}
	if err != nil {
		return AvailabilityRecord{}, err
	}
	if rec.Available {
		// Condition regressed; flip status but keep the available time.
		if err := g.availability.SetStatus(ctx, inst.ID, userID, false); err != nil {
			return AvailabilityRecord{}, err
		}
		rec.Available = false
	}
	return rec, nil
}

// BulkAvailability reads availability for many users in one round trip.
func (g *Gate) BulkAvailability(ctx context.Context, instanceID int, userIDs []int) (map[int]AvailabilityRecord, error) {
	if len(userIDs) == 0 {
		return map[int]AvailabilityRecord{}, nil
	}
	return g.availability.BulkGet(ctx, instanceID, userIDs)
}

// HandleEnrolment evaluates every given instance for the enrolled user. The
// composite event carries the enrolment and its role assignment together, so
// no state needs to survive between framework callbacks.
func (g *Gate) HandleEnrolment(ctx context.Context, ev EnrolmentEvent, instances []Instance) error {
	for _, inst := range instances {
		if inst.Course.ID != ev.CourseID {
			continue
		}
		if _, err := g.Evaluate(ctx, inst, ev.UserID); err != nil {
			return errors.Wrapf(err, "evaluating instance %d for user %d", inst.ID, ev.UserID)
		}
	}
	return nil
}

func (g *Gate) satisfied(ctx context.Context, inst Instance, userID int) (bool, error) {
	for name, enabled := range inst.Conditions {
		if !enabled {
			continue
		}
		cond, ok := g.registry.Get(name)
		if !ok {
			continue // condition plugin not installed; skip like the host platform does
		}
		ok, err := cond.IsSatisfied(ctx, inst, userID)
		if err != nil {
			return false, errors.Wrapf(err, "condition %q", name)
		}
		if !ok {
			return false, nil
		}
	}
	// No enabled conditions means the instance applies to everyone enrolled.
	return true, nil
}

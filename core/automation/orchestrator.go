package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/abinesh-lmsace/pulse/core"
)

// CreditAwarder grants course credit to a user for an instance, at most once.
type CreditAwarder interface {
	AwardOnce(ctx context.Context, instanceID, userID int, amount float64) (bool, error)
}

// Orchestrator drives one reminder pass: page through active instances, ask
// the resolver for each reminder type's due audience and push it through the
// dispatcher. Per-instance failures are isolated; only storage-level failures
// abort the pass.
type Orchestrator struct {
	instances  InstanceRepository
	resolver   *Resolver
	dispatcher *Dispatcher
	ledger     LedgerRepository
	logger     core.Logger
	credits    CreditAwarder

	pageSize   int
	claimGrace time.Duration
	workers    int
	nowFunc    func() time.Time
}

func NewOrchestrator(
	instances InstanceRepository,
	resolver *Resolver,
	dispatcher *Dispatcher,
	ledger LedgerRepository,
	logger core.Logger,
	conf *core.Config,
) *Orchestrator {
	return &Orchestrator{
		instances:  instances,
		resolver:   resolver,
		dispatcher: dispatcher,
		ledger:     ledger,
		logger:     logger,
		pageSize:   conf.ScheduleCount,
		claimGrace: conf.ClaimGrace,
		workers:    4,
		nowFunc:    time.Now,
	}
}

// SetCreditAwarder enables the credit step of the pass: instances carrying a
// credit score grant it to every available user, once.
func (o *Orchestrator) SetCreditAwarder(credits CreditAwarder) {
	o.credits = credits
}

// RunReminderPass executes one pass. Idempotent and safe to run concurrently
// with itself: the ledger claim protocol guarantees single delivery per key.
func (o *Orchestrator) RunReminderPass(ctx context.Context) (PassSummary, error) {
	now := o.nowFunc().Truncate(time.Second)
	summary := newSummary()

	// Recovery sweep: claims abandoned by crashed workers become claimable
	// again, otherwise their recipients are skipped forever.
	swept, err := o.ledger.ReleaseAbandoned(ctx, now.Add(-o.claimGrace))
	if err != nil {
		return summary.snapshot(), errors.Wrap(err, "recovery sweep")
	}
	if swept > 0 {
		o.logger.Warn(fmt.Sprintf("recovery sweep released %d abandoned claims", swept))
	}

	for offset := 0; ; offset += o.pageSize {
		page, err := o.instances.ActiveInstances(ctx, now, offset, o.pageSize)
		if err != nil {
			return summary.snapshot(), errors.Wrap(err, "loading instances")
		}
		if len(page) == 0 {
			break
		}

		grp, grpCtx := errgroup.WithContext(ctx)
		grp.SetLimit(o.workers)
		for _, inst := range page {
			inst := inst
			grp.Go(func() error {
				o.processInstance(grpCtx, inst, now, summary)
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			return summary.snapshot(), err
		}
		if len(page) < o.pageSize {
			break
		}
	}

	s := summary.snapshot()
	o.logger.Info(fmt.Sprintf("reminder pass: %d instances, %d sent, %d skipped, %d failed, %d warnings",
		s.Instances, s.Sent, s.Skipped, s.Failed, len(s.Warnings)))
	return s, nil
}

// processInstance handles all four reminder types for one instance. Errors
// are recorded, never propagated: a malformed instance must not block others.
func (o *Orchestrator) processInstance(ctx context.Context, inst Instance, now time.Time, summary *passState) {
	summary.instance()

	// Re-read the instance: the page snapshot may predate a concurrent delete.
	current, err := o.instances.GetInstance(ctx, inst.ID)
	if err == ErrNotFound {
		summary.warn(errors.Wrapf(ErrInstanceVanished, "instance %d", inst.ID).Error())
		return
	}
	if err != nil {
		summary.warn(fmt.Sprintf("instance %d: reloading: %v", inst.ID, err))
		return
	}
	inst = current

	for _, typ := range AllTypes {
		def, ok := inst.Definition(typ)
		if !ok || !def.Enabled {
			continue
		}
		if err := def.Validate(); err != nil {
			summary.warn(fmt.Sprintf("instance %d: skipping %s reminder: %v", inst.ID, typ, err))
			continue
		}
		// Fixed-date definitions can be pre-checked once for the whole cohort.
		if def.Schedule == ScheduleFixed && typ != TypeRecurring && typ != TypeInvitation && now.Before(def.FixedDate) {
			continue
		}

		audience, err := o.resolver.ResolveAudience(ctx, inst, def)
		if err != nil {
			if errors.Cause(err) == ErrInstanceVanished {
				summary.warn(fmt.Sprintf("instance %d vanished mid-pass", inst.ID))
				return
			}
			summary.warn(fmt.Sprintf("instance %d: resolving %s audience: %v", inst.ID, typ, err))
			continue
		}
		if audience.Empty() {
			continue
		}

		for _, u := range audience.Direct {
			o.dispatch(ctx, inst, def, u, nil, summary)
		}
		for _, t := range audience.Teachers {
			for i := range t.Students {
				o.dispatch(ctx, inst, def, t.User, &t.Students[i], summary)
			}
		}
		for _, p := range audience.Parents {
			for i := range p.Students {
				o.dispatch(ctx, inst, def, p.User, &p.Students[i], summary)
			}
		}
	}

	o.awardCredits(ctx, inst, summary)
}

// awardCredits grants the instance's credit score to every available user.
// AwardOnce deduplicates, so repeat passes never double-credit.
func (o *Orchestrator) awardCredits(ctx context.Context, inst Instance, summary *passState) {
	if o.credits == nil || inst.CreditScore <= 0 {
		return
	}
	users, err := o.resolver.AvailableUsers(ctx, inst)
	if err != nil {
		summary.warn(fmt.Sprintf("instance %d: resolving credit recipients: %v", inst.ID, err))
		return
	}
	for _, u := range users {
		if _, err := o.credits.AwardOnce(ctx, inst.ID, u.ID, inst.CreditScore); err != nil {
			summary.warn(fmt.Sprintf("instance %d: crediting user %d: %v", inst.ID, u.ID, err))
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, inst Instance, def ReminderDefinition, recipient User, onBehalfOf *User, summary *passState) {
	err := o.dispatcher.Send(ctx, inst, def, recipient, onBehalfOf)
	var cfgErr *ConfigurationError
	switch {
	case err == nil:
		summary.sent()
	case errors.Cause(err) == ErrClaimConflict:
		summary.skip() // another worker won the race; not a failure
	case errors.As(err, &cfgErr):
		// Misconfiguration, not a delivery failure: surface it to the
		// operator instead of retrying forever.
		summary.warn(err.Error())
	default:
		summary.fail()
		o.logger.Error(err.Error(), err)
	}
}

// passState accumulates a summary across concurrent instance workers.
type passState struct {
	mu sync.Mutex
	s  PassSummary
}

func newSummary() *passState { return &passState{} }

func (p *passState) instance() { p.mu.Lock(); p.s.Instances++; p.mu.Unlock() }
func (p *passState) sent()     { p.mu.Lock(); p.s.Sent++; p.mu.Unlock() }
func (p *passState) skip()     { p.mu.Lock(); p.s.Skipped++; p.mu.Unlock() }
func (p *passState) fail()     { p.mu.Lock(); p.s.Failed++; p.mu.Unlock() }

func (p *passState) warn(msg string) {
	p.mu.Lock()
	p.s.Warnings = append(p.s.Warnings, msg)
	p.mu.Unlock()
}

func (p *passState) snapshot() PassSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.s
	s.Warnings = append([]string(nil), p.s.Warnings...)
	return s
}

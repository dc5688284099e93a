package automation

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Resolver produces the concrete recipient set for one (instance, reminder
// type): direct recipients, course-context delegates (teachers) and
// user-context delegates (parents/guardians), each delegate paired with the
// students it is scoped to.
type Resolver struct {
	membership MembershipRepository
	ledger     LedgerRepository
	gate       *Gate
	batchLimit int
	nowFunc    func() time.Time
}

func NewResolver(membership MembershipRepository, ledger LedgerRepository, gate *Gate, batchLimit int) *Resolver {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Resolver{
		membership: membership,
		ledger:     ledger,
		gate:       gate,
		batchLimit: batchLimit,
		nowFunc:    time.Now,
	}
}

// ResolveAudience resolves the due recipient set for the definition at now.
// A definition with no recipient roles yields an empty audience, not an error:
// there is simply nothing to notify.
//
// Direct recipients and every delegate's student list are already filtered by
// availability, schedule and prior-delivery state, so callers dispatch the
// audience as-is. Results are capped by the batch limit per class; callers
// re-invoke on later passes for full-cohort processing.
func (r *Resolver) ResolveAudience(ctx context.Context, inst Instance, def ReminderDefinition) (Audience, error) {
	if len(def.Recipients) == 0 {
		return Audience{}, nil
	}
	now := r.nowFunc().Truncate(time.Second)

	// The eligible pool: capability holders in any role, availability- and
	// schedule-gated. Delegates are scoped to subsets of this pool.
	pool, err := r.eligibleStudents(ctx, inst, def, now)
	if err != nil {
		return Audience{}, err
	}

	direct, err := r.directRecipients(ctx, inst, def, pool)
	if err != nil {
		return Audience{}, err
	}
	directIDs := make(map[int]bool, len(direct))
	for _, u := range direct {
		directIDs[u.ID] = true
	}

	teachers, err := r.courseDelegates(ctx, inst, def, pool, directIDs, now)
	if err != nil {
		return Audience{}, err
	}
	parents, err := r.userContextDelegates(ctx, inst, def, pool, directIDs, now)
	if err != nil {
		return Audience{}, err
	}

	return Audience{Direct: direct, Teachers: teachers, Parents: parents}, nil
}

// AvailableUsers returns the enrolled users currently available for the
// instance, schedule aside. Consumers that act on availability itself (credit
// grants) draw from this rather than the per-type due pool.
func (r *Resolver) AvailableUsers(ctx context.Context, inst Instance) ([]User, error) {
	users, err := r.membership.NotifiableUsers(ctx, inst, nil, r.batchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifiable users")
	}
	if len(users) == 0 {
		return nil, nil
	}

	ids := make([]int, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	avail, err := r.gate.BulkAvailability(ctx, inst.ID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "bulk availability")
	}

	available := users[:0]
	for _, u := range users {
		if avail[u.ID].Available {
			available = append(available, u)
		}
	}
	return available, nil
}

// eligibleStudents builds the schedule-due student pool the three fan-out
// classes draw from: users with the notify capability (any role), available
// per the gate (invitations only require enrolment) and due per the schedule.
func (r *Resolver) eligibleStudents(ctx context.Context, inst Instance, def ReminderDefinition, now time.Time) ([]User, error) {
	users, err := r.membership.NotifiableUsers(ctx, inst, nil, r.batchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifiable users")
	}
	if len(users) == 0 {
		return nil, nil
	}

	ids := make([]int, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	avail, err := r.gate.BulkAvailability(ctx, inst.ID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "bulk availability")
	}
	last, err := r.ledger.LastDeliveries(ctx, inst.ID, def.Type, ids)
	if err != nil {
		return nil, errors.Wrap(err, "ledger last deliveries")
	}

	pool := users[:0]
	for _, u := range users {
		rec := avail[u.ID]
		if def.Type != TypeInvitation && !rec.Available {
			continue
		}
		availTime := rec.AvailableTime
		if def.Type == TypeInvitation && availTime.IsZero() {
			availTime = now
		}
		if !IsDue(def, availTime, last[u.ID], now) {
			continue
		}
		pool = append(pool, u)
	}
	return pool, nil
}

// directRecipients narrows the pool to the configured recipient roles.
// Prior-delivery exclusion already happened via LastDeliveries in the pool.
func (r *Resolver) directRecipients(ctx context.Context, inst Instance, def ReminderDefinition, pool []User) ([]User, error) {
	if len(pool) == 0 {
		return nil, nil
	}
	inRole, err := r.membership.NotifiableUsers(ctx, inst, def.Recipients, r.batchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "querying recipient-role users")
	}
	roleIDs := make(map[int]bool, len(inRole))
	for _, u := range inRole {
		roleIDs[u.ID] = true
	}

	direct := make([]User, 0, len(pool))
	for _, u := range pool {
		if roleIDs[u.ID] {
			direct = append(direct, u)
		}
	}
	return direct, nil
}

// courseDelegates resolves teacher-style delegates: configured roles held in
// the course subtree without the notify capability. A user who also qualifies
// as a direct recipient stays direct only. Under separate-groups mode a
// delegate without access-all-groups only sees their own groups' students.
func (r *Resolver) courseDelegates(ctx context.Context, inst Instance, def ReminderDefinition, pool []User, directIDs map[int]bool, now time.Time) ([]Delegate, error) {
	users, err := r.membership.CourseDelegates(ctx, inst, def.Recipients)
	if err != nil {
		return nil, errors.Wrap(err, "querying course delegates")
	}

	since := dedupeSince(def, now)
	delegates := make([]Delegate, 0, len(users))
	scoped := 0
	for _, u := range users {
		if directIDs[u.ID] {
			continue
		}
		// Memory guard: past the batch limit, delegates keep an empty student
		// list this pass and pick their students up on a later one.
		if scoped >= r.batchLimit {
			delegates = append(delegates, Delegate{User: u})
			continue
		}

		students := pool
		if inst.Course.GroupMode == GroupsSeparate {
			all, err := r.membership.HasAccessAllGroups(ctx, inst.Course.ID, u.ID)
			if err != nil {
				return nil, errors.Wrap(err, "checking group access")
			}
			if !all {
				peers, err := r.membership.GroupPeerIDs(ctx, inst.Course.ID, u.ID)
				if err != nil {
					return nil, errors.Wrap(err, "querying group peers")
				}
				students = filterUsers(students, func(s User) bool { return peers[s.ID] })
			}
		}

		notified, err := r.ledger.NotifiedAboutIDs(ctx, inst.ID, def.Type, u.ID, since)
		if err != nil {
			return nil, errors.Wrap(err, "ledger notified-about")
		}
		students = filterUsers(students, func(s User) bool { return s.ID != u.ID && !notified[s.ID] })

		delegates = append(delegates, Delegate{User: u, Students: students})
		scoped += len(students)
	}
	return delegates, nil
}

// userContextDelegates resolves parent-style delegates: recipient roles held
// at a personal context. Each delegate is scoped to the pool members they hold
// the role on.
func (r *Resolver) userContextDelegates(ctx context.Context, inst Instance, def ReminderDefinition, pool []User, directIDs map[int]bool, now time.Time) ([]Delegate, error) {
	users, err := r.membership.UserContextDelegates(ctx, inst, def.Recipients)
	if err != nil {
		return nil, errors.Wrap(err, "querying user-context delegates")
	}

	since := dedupeSince(def, now)
	delegates := make([]Delegate, 0, len(users))
	for _, u := range users {
		if directIDs[u.ID] {
			continue
		}
		wardIDs, err := r.membership.WardIDs(ctx, u.ID, def.Recipients)
		if err != nil {
			return nil, errors.Wrap(err, "querying wards")
		}
		wards := make(map[int]bool, len(wardIDs))
		for _, id := range wardIDs {
			wards[id] = true
		}
		notified, err := r.ledger.NotifiedAboutIDs(ctx, inst.ID, def.Type, u.ID, since)
		if err != nil {
			return nil, errors.Wrap(err, "ledger notified-about")
		}

		students := filterUsers(pool, func(s User) bool { return wards[s.ID] && !notified[s.ID] })
		delegates = append(delegates, Delegate{User: u, Students: students})
	}
	return delegates, nil
}

func filterUsers(users []User, keep func(User) bool) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

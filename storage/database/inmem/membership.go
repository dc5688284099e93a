package inmemdb

import (
	"context"
	"sort"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

// Capability names checked against role definitions.
const (
	CapNotify          = "mod/pulse:notifyuser"
	CapAccessAllGroups = "moodle/site:accessallgroups"
)

const (
	contextCourse = 50
	contextUser   = 30
)

// MembershipRepository answers membership queries from in-memory fixtures and
// doubles as the availability condition source and the reaction sink.
type MembershipRepository struct {
	db *membershipTable
}

func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db.membership}
}

// ---- fixture setters ----

func (repo *MembershipRepository) AddUser(usr automation.User) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.users[usr.ID] = usr
}

func (repo *MembershipRepository) Enrol(courseID, userID, roleID int) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.enrolments[enrolmentKey{courseID, userID, roleID}] = true
}

// AssignCourseRole gives a user a role inside a course context.
func (repo *MembershipRepository) AssignCourseRole(roleID, userID, contextID int) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.assignments[assignmentKey{roleID, userID, contextID, contextCourse}] = true
}

// AssignUserRole gives a delegate a role on a ward's personal context.
func (repo *MembershipRepository) AssignUserRole(roleID, delegateID, wardID int) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.assignments[assignmentKey{roleID, delegateID, wardID, contextUser}] = true
}

func (repo *MembershipRepository) GrantCapability(roleID int, capability string) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.capabilities[capabilityKey{roleID, capability}] = true
}

func (repo *MembershipRepository) AddGroupMember(courseID, groupID, userID int) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.groups[groupKey{courseID, groupID, userID}] = true
}

func (repo *MembershipRepository) SetCompleted(activityID, userID int) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.completions[completionKey{activityID, userID}] = true
}

func (repo *MembershipRepository) BookSession(activityID, userID int) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.bookings[bookingKey{activityID, userID}] = true
}

// ---- automation.MembershipRepository ----

func (repo *MembershipRepository) NotifiableUsers(_ context.Context, inst automation.Instance, roleIDs []int, limit int) ([]automation.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	roleSet := toSet(roleIDs)
	seen := make(map[int]bool)
	var users []automation.User
	for key := range repo.db.enrolments {
		if key.courseID != inst.Course.ID || seen[key.userID] {
			continue
		}
		if len(roleSet) > 0 && !roleSet[key.roleID] {
			continue
		}
		if !repo.db.capabilities[capabilityKey{key.roleID, CapNotify}] {
			continue
		}
		seen[key.userID] = true
		users = append(users, repo.db.users[key.userID])
	}

	sortUsers(users)
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (repo *MembershipRepository) CourseDelegates(_ context.Context, inst automation.Instance, roleIDs []int) ([]automation.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	roleSet := toSet(roleIDs)
	contexts := toSet(inst.ContextPath)
	if len(contexts) == 0 {
		contexts = map[int]bool{inst.Course.ID: true}
	}

	seen := make(map[int]bool)
	var users []automation.User
	for key := range repo.db.assignments {
		if key.contextLevel != contextCourse || !contexts[key.contextID] || seen[key.userID] {
			continue
		}
		if !roleSet[key.roleID] {
			continue
		}
		if repo.db.capabilities[capabilityKey{key.roleID, CapNotify}] {
			continue
		}
		seen[key.userID] = true
		users = append(users, repo.db.users[key.userID])
	}

	sortUsers(users)
	return users, nil
}

func (repo *MembershipRepository) UserContextDelegates(_ context.Context, inst automation.Instance, roleIDs []int) ([]automation.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	roleSet := toSet(roleIDs)
	seen := make(map[int]bool)
	var users []automation.User
	for key := range repo.db.assignments {
		if key.contextLevel != contextUser || seen[key.userID] || !roleSet[key.roleID] {
			continue
		}
		if !repo.enrolledLocked(inst.Course.ID, key.contextID) {
			continue
		}
		seen[key.userID] = true
		users = append(users, repo.db.users[key.userID])
	}

	sortUsers(users)
	return users, nil
}

func (repo *MembershipRepository) WardIDs(_ context.Context, delegateID int, roleIDs []int) ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	roleSet := toSet(roleIDs)
	var ids []int
	for key := range repo.db.assignments {
		if key.contextLevel == contextUser && key.userID == delegateID && roleSet[key.roleID] {
			ids = append(ids, key.contextID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *MembershipRepository) HasAccessAllGroups(_ context.Context, courseID, userID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for key := range repo.db.enrolments {
		if key.courseID == courseID && key.userID == userID &&
			repo.db.capabilities[capabilityKey{key.roleID, CapAccessAllGroups}] {
			return true, nil
		}
	}
	for key := range repo.db.assignments {
		if key.contextLevel == contextCourse && key.contextID == courseID && key.userID == userID &&
			repo.db.capabilities[capabilityKey{key.roleID, CapAccessAllGroups}] {
			return true, nil
		}
	}
	return false, nil
}

func (repo *MembershipRepository) GroupPeerIDs(_ context.Context, courseID, userID int) (map[int]bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ownGroups := make(map[int]bool)
	for key := range repo.db.groups {
		if key.courseID == courseID && key.userID == userID {
			ownGroups[key.groupID] = true
		}
	}

	peers := make(map[int]bool)
	for key := range repo.db.groups {
		if key.courseID == courseID && ownGroups[key.groupID] {
			peers[key.userID] = true
		}
	}
	return peers, nil
}

func (repo *MembershipRepository) IsEnrolled(_ context.Context, courseID, userID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.enrolledLocked(courseID, userID), nil
}

func (repo *MembershipRepository) enrolledLocked(courseID, userID int) bool {
	for key := range repo.db.enrolments {
		if key.courseID == courseID && key.userID == userID {
			return true
		}
	}
	return false
}

// ---- condition sources ----

func (repo *MembershipRepository) CompletedActivities(_ context.Context, _, userID int, activityIDs []int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, activityID := range activityIDs {
		if !repo.db.completions[completionKey{activityID, userID}] {
			return false, nil
		}
	}
	return true, nil
}

func (repo *MembershipRepository) HasBookedSession(_ context.Context, activityID, userID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.bookings[bookingKey{activityID, userID}], nil
}

// ---- reaction.Sink ----

func (repo *MembershipRepository) MarkCompleted(_ context.Context, activityID, userID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.completions[completionKey{activityID, userID}] = true
	return nil
}

func (repo *MembershipRepository) Approve(_ context.Context, activityID, userID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.approvals[bookingKey{activityID, userID}] = true
	return nil
}

func (repo *MembershipRepository) Rate(_ context.Context, activityID, userID, value int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.ratings[bookingKey{activityID, userID}] = value
	return nil
}

// ---- credits.Balance ----

func (repo *MembershipRepository) AddCredits(_ context.Context, userID int, amount float64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.creditsByUID[userID] += amount
	return nil
}

// Credits returns the mirrored balance of a user.
func (repo *MembershipRepository) Credits(userID int) float64 {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.creditsByUID[userID]
}

func toSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortUsers(users []automation.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}

package automation

import (
	"context"
	"time"
)

type (
	// InstanceRepository persists automation instances and their reminder
	// definitions.
	InstanceRepository interface {
		CreateInstance(ctx context.Context, inst Instance) (Instance, error)
		UpdateInstance(ctx context.Context, inst Instance) (Instance, error)
		GetInstance(ctx context.Context, id int) (Instance, error)
		DeleteInstance(ctx context.Context, id int) error
		// ActiveInstances pages through enabled instances whose activity and
		// course are visible and whose course window covers now.
		ActiveInstances(ctx context.Context, now time.Time, offset, limit int) ([]Instance, error)
		// CourseInstances returns enabled instances attached to a course,
		// regardless of window. Used for event-driven availability checks.
		CourseInstances(ctx context.Context, courseID int) ([]Instance, error)
	}

	// MembershipRepository answers role/enrolment/group questions against the
	// host platform's access-control hierarchy. Read-only.
	MembershipRepository interface {
		// NotifiableUsers returns enrolled users holding the notify capability
		// within the instance context path, restricted to roleIDs when
		// non-empty. Deleted and suspended accounts are excluded. At most
		// limit users are returned per invocation.
		NotifiableUsers(ctx context.Context, inst Instance, roleIDs []int, limit int) ([]User, error)
		// CourseDelegates returns users holding any of roleIDs inside the
		// course context subtree without the notify capability.
		CourseDelegates(ctx context.Context, inst Instance, roleIDs []int) ([]User, error)
		// UserContextDelegates returns users holding any of roleIDs assigned
		// at a personal (user) context on some enrolled user of the course.
		UserContextDelegates(ctx context.Context, inst Instance, roleIDs []int) ([]User, error)
		// WardIDs returns ids of the users on whom the delegate holds any of
		// roleIDs at user context.
		WardIDs(ctx context.Context, delegateID int, roleIDs []int) ([]int, error)
		// HasAccessAllGroups reports whether the user may see every group in
		// the course.
		HasAccessAllGroups(ctx context.Context, courseID, userID int) (bool, error)
		// GroupPeerIDs returns the ids of users sharing at least one course
		// group with the given user.
		GroupPeerIDs(ctx context.Context, courseID, userID int) (map[int]bool, error)
		IsEnrolled(ctx context.Context, courseID, userID int) (bool, error)
	}

	// AvailabilityRepository stores per (instance, user) availability state.
	AvailabilityRepository interface {
		Get(ctx context.Context, instanceID, userID int) (AvailabilityRecord, error)
		BulkGet(ctx context.Context, instanceID int, userIDs []int) (map[int]AvailabilityRecord, error)
		// MarkAvailable records the first time the condition held. Subsequent
		// calls keep the original available time.
		MarkAvailable(ctx context.Context, instanceID, userID int, at time.Time) (AvailabilityRecord, error)
		SetStatus(ctx context.Context, instanceID, userID int, available bool) error
		DeleteByInstance(ctx context.Context, instanceID int) error
	}

	// LedgerRepository is the idempotent delivery store. TryClaim/Commit/
	// Release form a strict sequence per key; concurrent claimers on one key
	// get exactly one winner.
	LedgerRepository interface {
		// TryClaim atomically inserts a pending row for the key, owned by
		// token. It reports false when the key is already claimed, or already
		// delivered for non-recurring types.
		TryClaim(ctx context.Context, key DeliveryKey, token string, now time.Time) (bool, error)
		// Commit marks the claimed row delivered. Recurring commits leave the
		// row as history so later firings claim fresh rows.
		Commit(ctx context.Context, key DeliveryKey, token string, at time.Time) error
		// Release drops the pending claim so a later pass may retry.
		Release(ctx context.Context, key DeliveryKey, token string) error
		// NotifiedAboutIDs returns the student ids the delegate was notified
		// about since the given time.
		NotifiedAboutIDs(ctx context.Context, instanceID int, typ ReminderType, delegateID int, since time.Time) (map[int]bool, error)
		// LastDeliveries returns each user's most recent delivered time for
		// direct keys; absent users have no delivery.
		LastDeliveries(ctx context.Context, instanceID int, typ ReminderType, userIDs []int) (map[int]time.Time, error)
		// ReleaseAbandoned releases pending claims older than before and
		// returns how many were swept.
		ReleaseAbandoned(ctx context.Context, before time.Time) (int, error)
		Records(ctx context.Context, instanceID int) ([]DeliveryRecord, error)
		DeleteByInstance(ctx context.Context, instanceID int) error
		DeleteByInstanceType(ctx context.Context, instanceID int, typ ReminderType) error
		// Transact runs fn against a transactional view of the ledger; claim,
		// external send and commit of an invitation ride in one transaction.
		Transact(ctx context.Context, fn func(LedgerRepository) error) error
	}
)

package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

// Capability names checked against role definitions.
const (
	capNotify          = "mod/pulse:notifyuser"
	capAccessAllGroups = "moodle/site:accessallgroups"
)

// Context levels in the access hierarchy.
const (
	contextCourse = 50
	contextUser   = 30
)

// membershipRepository reads the host platform's enrolment and role tables.
// Course contexts are keyed by course id; user contexts by the subject's
// user id. It also backs the availability condition sources.
type membershipRepository struct {
	db *sqlx.DB
}

func NewMembershipRepository(db *sqlx.DB) *membershipRepository {
	return &membershipRepository{db: db}
}

type userRow struct {
	ID        int    `db:"id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"`
}

func toUsers(rows []userRow) []automation.User {
	users := make([]automation.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, automation.User{
			ID:        row.ID,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Email:     row.Email,
		})
	}
	return users
}

func (repo *membershipRepository) NotifiableUsers(ctx context.Context, inst automation.Instance, roleIDs []int, limit int) ([]automation.User, error) {
	var rows []userRow
	query := `SELECT DISTINCT u.id, u.first_name, u.last_name, u.email
		FROM users u
		JOIN enrolments e ON e.user_id = u.id AND e.course_id = $1 AND e.active
		JOIN role_capabilities rc ON rc.role_id = e.role_id AND rc.capability = $2 AND rc.allowed
		WHERE cardinality($3::int[]) = 0 OR e.role_id = ANY($3)
		ORDER BY u.id
		LIMIT NULLIF($4, 0)`
	err := sqlx.SelectContext(ctx, repo.db, &rows, query,
		inst.Course.ID, capNotify, pq.Array(intSlice(roleIDs)), limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifiable users")
	}
	return toUsers(rows), nil
}

func (repo *membershipRepository) CourseDelegates(ctx context.Context, inst automation.Instance, roleIDs []int) ([]automation.User, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var rows []userRow
	query := `SELECT DISTINCT u.id, u.first_name, u.last_name, u.email
		FROM users u
		JOIN role_assignments ra ON ra.user_id = u.id
			AND ra.context_level = $1 AND ra.context_id = ANY($2)
		WHERE ra.role_id = ANY($3)
			AND NOT EXISTS (
				SELECT 1 FROM role_capabilities rc
				WHERE rc.role_id = ra.role_id AND rc.capability = $4 AND rc.allowed
			)
		ORDER BY u.id`
	err := sqlx.SelectContext(ctx, repo.db, &rows, query,
		contextCourse, pq.Array(contextIDs(inst)), pq.Array(roleIDs), capNotify)
	if err != nil {
		return nil, errors.Wrap(err, "querying course delegates")
	}
	return toUsers(rows), nil
}

func (repo *membershipRepository) UserContextDelegates(ctx context.Context, inst automation.Instance, roleIDs []int) ([]automation.User, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var rows []userRow
	query := `SELECT DISTINCT u.id, u.first_name, u.last_name, u.email
		FROM users u
		JOIN role_assignments ra ON ra.user_id = u.id AND ra.context_level = $1
		JOIN enrolments e ON e.user_id = ra.context_id AND e.course_id = $2 AND e.active
		WHERE ra.role_id = ANY($3)
		ORDER BY u.id`
	err := sqlx.SelectContext(ctx, repo.db, &rows, query,
		contextUser, inst.Course.ID, pq.Array(roleIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying user context delegates")
	}
	return toUsers(rows), nil
}

func (repo *membershipRepository) WardIDs(ctx context.Context, delegateID int, roleIDs []int) ([]int, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var ids []int
	query := `SELECT context_id FROM role_assignments
		WHERE user_id = $1 AND context_level = $2 AND role_id = ANY($3)
		ORDER BY context_id`
	err := sqlx.SelectContext(ctx, repo.db, &ids, query, delegateID, contextUser, pq.Array(roleIDs))
	return ids, errors.Wrap(err, "querying ward ids")
}

func (repo *membershipRepository) HasAccessAllGroups(ctx context.Context, courseID, userID int) (bool, error) {
	var has bool
	query := `SELECT EXISTS (
		SELECT 1 FROM role_capabilities rc
		WHERE rc.capability = $3 AND rc.allowed AND rc.role_id IN (
			SELECT role_id FROM enrolments WHERE course_id = $1 AND user_id = $2 AND active
			UNION
			SELECT role_id FROM role_assignments
			WHERE context_level = $4 AND context_id = $1 AND user_id = $2
		)
	)`
	err := sqlx.GetContext(ctx, repo.db, &has, query, courseID, userID, capAccessAllGroups, contextCourse)
	return has, errors.Wrap(err, "checking access all groups")
}

func (repo *membershipRepository) GroupPeerIDs(ctx context.Context, courseID, userID int) (map[int]bool, error) {
	var ids []int
	query := `SELECT DISTINCT peer.user_id
		FROM group_members own
		JOIN group_members peer ON peer.course_id = own.course_id AND peer.group_id = own.group_id
		WHERE own.course_id = $1 AND own.user_id = $2`
	if err := sqlx.SelectContext(ctx, repo.db, &ids, query, courseID, userID); err != nil {
		return nil, errors.Wrap(err, "querying group peers")
	}

	peers := make(map[int]bool, len(ids))
	for _, id := range ids {
		peers[id] = true
	}
	return peers, nil
}

func (repo *membershipRepository) IsEnrolled(ctx context.Context, courseID, userID int) (bool, error) {
	var enrolled bool
	query := `SELECT EXISTS (SELECT 1 FROM enrolments WHERE course_id = $1 AND user_id = $2 AND active)`
	err := sqlx.GetContext(ctx, repo.db, &enrolled, query, courseID, userID)
	return enrolled, errors.Wrap(err, "checking enrolment")
}

// CompletedActivities reports whether the user completed every listed
// activity. Activity ids are unique across courses so the course is not part
// of the lookup.
func (repo *membershipRepository) CompletedActivities(ctx context.Context, _, userID int, activityIDs []int) (bool, error) {
	if len(activityIDs) == 0 {
		return true, nil
	}

	var count int
	query := `SELECT COUNT(*) FROM activity_completions
		WHERE user_id = $1 AND activity_id = ANY($2) AND completed`
	err := sqlx.GetContext(ctx, repo.db, &count, query, userID, pq.Array(activityIDs))
	if err != nil {
		return false, errors.Wrap(err, "checking activity completion")
	}
	return count == len(activityIDs), nil
}

func (repo *membershipRepository) HasBookedSession(ctx context.Context, activityID, userID int) (bool, error) {
	var booked bool
	query := `SELECT EXISTS (SELECT 1 FROM session_bookings WHERE activity_id = $1 AND user_id = $2)`
	err := sqlx.GetContext(ctx, repo.db, &booked, query, activityID, userID)
	return booked, errors.Wrap(err, "checking session booking")
}

func contextIDs(inst automation.Instance) []int {
	if len(inst.ContextPath) > 0 {
		return inst.ContextPath
	}
	return []int{inst.Course.ID}
}

func intSlice(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

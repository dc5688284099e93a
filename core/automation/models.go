package automation

import (
	"net/mail"
	"time"
)

// Reminder types, in dispatch order.
const (
	TypeInvitation ReminderType = "invitation"
	TypeFirst      ReminderType = "first"
	TypeSecond     ReminderType = "second"
	TypeRecurring  ReminderType = "recurring"
)

// AllTypes lists reminder types in the order the orchestrator processes them.
var AllTypes = []ReminderType{TypeInvitation, TypeFirst, TypeSecond, TypeRecurring}

type ReminderType string

func (t ReminderType) Valid() bool {
	switch t {
	case TypeInvitation, TypeFirst, TypeSecond, TypeRecurring:
		return true
	}
	return false
}

// Schedule modes for first/second reminders. Recurring is always relative,
// invitation has no schedule.
const (
	ScheduleFixed    Schedule = 0
	ScheduleRelative Schedule = 1
)

type Schedule int

// Course group modes. Only separate groups restricts delegate visibility.
const (
	GroupsNone     GroupMode = 0
	GroupsSeparate GroupMode = 1
	GroupsVisible  GroupMode = 2
)

type GroupMode int

type (
	// Course is the owning course of an automation instance, denormalized onto
	// the instance for scheduling and delegate scoping decisions.
	Course struct {
		ID        int
		FullName  string
		ShortName string
		Visible   bool
		GroupMode GroupMode
		StartDate time.Time
		EndDate   time.Time // zero = open-ended
	}

	// Instance is one configured automation attached to a course activity.
	Instance struct {
		ID              int
		Name            string
		Content         string // activity body; invitations without their own content fall back to it
		ActivityID      int
		ActivityName    string
		ActivityVisible bool
		Course          Course
		ContextPath     []int // ancestor context ids, root to leaf
		Enabled         bool
		SenderID        int             // course sender the messages go out as; 0 = system
		Conditions      map[string]bool // condition name -> enabled
		WatchActivities []int           // activity ids the activity-completion condition watches
		CreditScore     float64         // credit granted once a user becomes available; 0 = none
		ReactionType    string          // one-click reaction minted into messages; "" = none
		Reminders       map[ReminderType]ReminderDefinition
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// ReminderDefinition is one of the four reminder configurations owned by an
	// instance.
	ReminderDefinition struct {
		Type          ReminderType
		Enabled       bool
		Recipients    []int // role ids
		Schedule      Schedule
		FixedDate     time.Time
		Offset        time.Duration // relative offset from available time
		Subject       string
		Content       string
		ContentFormat int
	}

	// User is a recipient identity. Profile data is owned by the host platform;
	// only what notification rendering needs is carried here.
	User struct {
		ID        int
		FirstName string
		LastName  string
		Email     string
	}

	// Delegate is a course- or user-context recipient notified on behalf of the
	// students it is scoped to.
	Delegate struct {
		User
		Students []User
	}

	// Audience is the resolved recipient set for one (instance, reminder type),
	// partitioned into the three fan-out classes.
	Audience struct {
		Direct   []User     // notify-capability holders in the recipient roles
		Teachers []Delegate // course-context roles without the capability
		Parents  []Delegate // recipient roles assigned at user context
	}

	// AvailabilityRecord tracks when an instance first became eligible for a
	// user. AvailableTime is written once and never reset.
	AvailabilityRecord struct {
		InstanceID    int
		UserID        int
		Available     bool
		AvailableTime time.Time
	}

	// DeliveryKey identifies one delivery obligation. ForUserID is zero for
	// direct recipients; for delegates it is the student the notification is
	// about, so a teacher notified about student A can still be notified about
	// student B.
	DeliveryKey struct {
		InstanceID int
		UserID     int
		Type       ReminderType
		ForUserID  int
	}

	// DeliveryRecord is one ledger row. Non-recurring keys keep at most one
	// row; recurring keys accumulate one delivered row per firing (history is
	// unbounded, retention rides on the instance cascade delete).
	DeliveryRecord struct {
		ID          int64
		Key         DeliveryKey
		Status      DeliveryStatus
		ClaimToken  string
		ClaimedAt   time.Time
		DeliveredAt time.Time
	}

	// PassSummary reports one orchestrator pass to the operator.
	PassSummary struct {
		Instances int
		Sent      int
		Skipped   int
		Failed    int
		Warnings  []string
	}

	// EnrolmentEvent is the composite payload correlating an enrolment with its
	// role assignment, delivered through a single call.
	EnrolmentEvent struct {
		CourseID int
		UserID   int
		RoleID   int
	}
)

type DeliveryStatus int

const (
	StatusPending DeliveryStatus = iota + 1
	StatusDelivered
)

func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u User) Address() mail.Address {
	return mail.Address{Name: u.FullName(), Address: u.Email}
}

func (a Audience) Empty() bool {
	return len(a.Direct) == 0 && len(a.Teachers) == 0 && len(a.Parents) == 0
}

// Definition returns the instance's definition for the given type, if present.
func (inst Instance) Definition(typ ReminderType) (ReminderDefinition, bool) {
	def, ok := inst.Reminders[typ]
	return def, ok
}

// InWindow reports whether the owning course window covers now; instances of
// hidden activities or courses are never in window.
func (inst Instance) InWindow(now time.Time) bool {
	if !inst.Enabled || !inst.ActivityVisible || !inst.Course.Visible {
		return false
	}
	if inst.Course.StartDate.After(now) {
		return false
	}
	if !inst.Course.EndDate.IsZero() && inst.Course.EndDate.Before(now) {
		return false
	}
	return true
}

// Package inmemdb backs the pulse repositories with in-memory tables. It is
// the storage used by tests and local development.
package inmemdb

import (
	"sync"

	"github.com/abinesh-lmsace/pulse/core/automation"
	"github.com/abinesh-lmsace/pulse/core/credits"
	"github.com/abinesh-lmsace/pulse/core/reaction"
)

type DB struct {
	instance     *instanceTable
	availability *availabilityTable
	ledger       *ledgerTable
	membership   *membershipTable
	credits      *creditsTable
	reaction     *reactionTable
}

func NewDB() *DB {
	return &DB{
		instance: &instanceTable{
			table: make(map[int]*automation.Instance),
		},
		availability: &availabilityTable{
			table: make(map[availabilityKey]*automation.AvailabilityRecord),
		},
		ledger: &ledgerTable{},
		membership: &membershipTable{
			users:        make(map[int]automation.User),
			enrolments:   make(map[enrolmentKey]bool),
			assignments:  make(map[assignmentKey]bool),
			capabilities: make(map[capabilityKey]bool),
			groups:       make(map[groupKey]bool),
			completions:  make(map[completionKey]bool),
			bookings:     make(map[bookingKey]bool),
			approvals:    make(map[bookingKey]bool),
			ratings:      make(map[bookingKey]int),
			creditsByUID: make(map[int]float64),
		},
		credits:  &creditsTable{awards: make(map[creditKey]*credits.Award)},
		reaction: &reactionTable{table: make(map[int64]*reaction.Record)},
	}
}

type (
	instanceTable struct {
		mutex   sync.RWMutex
		pkCount int
		table   map[int]*automation.Instance
	}

	availabilityKey struct{ instanceID, userID int }

	availabilityTable struct {
		mutex sync.RWMutex
		table map[availabilityKey]*automation.AvailabilityRecord
	}

	ledgerTable struct {
		mutex   sync.Mutex
		txMutex sync.Mutex
		pkCount int64
		records []*automation.DeliveryRecord
	}

	enrolmentKey  struct{ courseID, userID, roleID int }
	assignmentKey struct {
		roleID, userID, contextID, contextLevel int
	}
	capabilityKey struct {
		roleID     int
		capability string
	}
	groupKey      struct{ courseID, groupID, userID int }
	completionKey struct{ activityID, userID int }
	bookingKey    struct{ activityID, userID int }

	membershipTable struct {
		mutex        sync.RWMutex
		users        map[int]automation.User
		enrolments   map[enrolmentKey]bool
		assignments  map[assignmentKey]bool
		capabilities map[capabilityKey]bool
		groups       map[groupKey]bool
		completions  map[completionKey]bool
		bookings     map[bookingKey]bool
		approvals    map[bookingKey]bool
		ratings      map[bookingKey]int
		creditsByUID map[int]float64
	}

	creditKey struct{ instanceID, userID int }

	creditsTable struct {
		mutex   sync.RWMutex
		pkCount int64
		awards  map[creditKey]*credits.Award
	}

	reactionTable struct {
		mutex   sync.RWMutex
		pkCount int64
		table   map[int64]*reaction.Record
	}
)

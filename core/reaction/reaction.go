// Package reaction implements one-click response links embedded in reminder
// messages. Each link carries a signed token bound to a pending reaction
// record; applying it marks completion, records approval or stores a rating
// without requiring the recipient to sign in.
package reaction

import (
	"context"
	"errors"
	"time"
)

// Reaction types.
const (
	TypeComplete Type = "complete"
	TypeApprove  Type = "approve"
	TypeRate     Type = "rate"
)

type Type string

func (t Type) Valid() bool {
	switch t {
	case TypeComplete, TypeApprove, TypeRate:
		return true
	}
	return false
}

// Record statuses.
const (
	StatusPending Status = iota + 1
	StatusApplied
)

type Status int

var (
	ErrInvalidToken   = errors.New("invalid reaction token")
	ErrTokenExpired   = errors.New("reaction token expired")
	ErrAlreadyApplied = errors.New("reaction already applied")
	ErrNotFound       = errors.New("reaction not found")
)

type (
	// Record is one issued reaction, bound to the reminder it was sent with.
	Record struct {
		ID         int64
		InstanceID int
		ActivityID int
		UserID     int
		Type       Type
		Status     Status
		Rating     int // set on apply for TypeRate
		CreatedAt  time.Time
		AppliedAt  time.Time
	}

	Repository interface {
		CreateRecord(ctx context.Context, rec *Record) error
		GetRecord(ctx context.Context, id int64) (Record, error)
		MarkApplied(ctx context.Context, id int64, rating int, at time.Time) error
		DeleteByInstance(ctx context.Context, instanceID int) error
	}

	// Sink receives the effect of an applied reaction on the host platform.
	Sink interface {
		MarkCompleted(ctx context.Context, activityID, userID int) error
		Approve(ctx context.Context, activityID, userID int) error
		Rate(ctx context.Context, activityID, userID, value int) error
	}
)

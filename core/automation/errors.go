package automation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = errors.New("record not found")

	// ErrClaimConflict means another worker already holds the delivery claim.
	// Expected under concurrent passes; the loser skips the key this tick.
	ErrClaimConflict = errors.New("delivery already claimed")

	// ErrInstanceVanished means the referenced instance/activity/course was
	// deleted mid-pass; the work item is abandoned.
	ErrInstanceVanished = errors.New("instance vanished during processing")
)

// ConfigurationError flags a malformed reminder definition. The offending
// definition is skipped and the pass continues; the error surfaces as a
// warning in the pass summary.
type ConfigurationError struct {
	InstanceID int
	Type       ReminderType
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("instance %d: %s reminder misconfigured: %s", e.InstanceID, e.Type, e.Reason)
}

// DeliveryError wraps a failed external send. The claim is released and the
// recipient retried on the next pass.
type DeliveryError struct {
	Key DeliveryKey
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering %s reminder for instance %d to user %d: %v", e.Key.Type, e.Key.InstanceID, e.Key.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

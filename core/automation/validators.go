package automation

import (
	"errors"

	"github.com/abinesh-lmsace/pulse/core"
)

var (
	errSubjectRequired    = errors.New("subject is required")
	errContentRequired    = errors.New("content is required")
	errRecipientsRequired = errors.New("at least one recipient role is required")
	errFixedDateRequired  = errors.New("a fixed date is required for fixed scheduling")
	errNegativeOffset     = errors.New("relative offset must not be negative")
	errInvalidType        = errors.New("unknown reminder type")
)

// Validate checks an enabled reminder definition for the invariants enforced
// at instance save time: non-empty subject, content and recipient roles, a
// fixed date under fixed scheduling and a non-negative offset under relative
// scheduling. Disabled definitions always pass.
func (def ReminderDefinition) Validate() error {
	if !def.Type.Valid() {
		return errInvalidType
	}
	if !def.Enabled {
		return nil
	}

	var flds []core.FieldError
	// Invitations reuse the instance's own name/content when blank.
	if def.Type != TypeInvitation {
		if core.CleanString(def.Subject) == "" {
			flds = append(flds, core.FieldError{Field: "subject", Error: errSubjectRequired.Error()})
		}
		if core.CleanString(def.Content) == "" {
			flds = append(flds, core.FieldError{Field: "content", Error: errContentRequired.Error()})
		}
	}
	if len(def.Recipients) == 0 {
		flds = append(flds, core.FieldError{Field: "recipients", Error: errRecipientsRequired.Error()})
	}

	switch def.Type {
	case TypeFirst, TypeSecond:
		if def.Schedule == ScheduleFixed && def.FixedDate.IsZero() {
			flds = append(flds, core.FieldError{Field: "fixeddate", Error: errFixedDateRequired.Error()})
		}
		if def.Schedule == ScheduleRelative && def.Offset < 0 {
			flds = append(flds, core.FieldError{Field: "relativedate", Error: errNegativeOffset.Error()})
		}
	case TypeRecurring:
		// Recurring is always relative.
		if def.Offset < 0 {
			flds = append(flds, core.FieldError{Field: "relativedate", Error: errNegativeOffset.Error()})
		}
	}

	if len(flds) > 0 {
		return core.NewValidationError(errors.New("reminder definition invalid"), flds...)
	}
	return nil
}

// ValidateInstance validates an instance and all of its reminder definitions.
func ValidateInstance(inst Instance) error {
	if inst.ActivityID == 0 || inst.Course.ID == 0 {
		return core.NewValidationError(errors.New("instance must belong to a course activity"))
	}
	for typ, def := range inst.Reminders {
		if def.Type != typ {
			return core.NewValidationError(errors.New("reminder definition keyed under wrong type"))
		}
		if err := def.Validate(); err != nil {
			return err
		}
	}
	return nil
}

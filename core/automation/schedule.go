package automation

import "time"

// IsDue decides whether a reminder definition is due for a recipient at now.
//
// invitation: due once, as soon as the recipient qualifies.
// first/second: due once; fixed mode gates on the fixed date, relative mode on
// the recipient's available time plus the offset.
// recurring: re-fires every offset, measured from the later of the last
// delivery and the available time.
//
// All comparisons are whole-second epoch semantics; an offset of zero means
// due as soon as available. Negative offsets are rejected at save time and
// never reach this function.
func IsDue(def ReminderDefinition, availableTime, lastDelivery, now time.Time) bool {
	if !def.Enabled {
		return false
	}

	switch def.Type {
	case TypeInvitation:
		return lastDelivery.IsZero()

	case TypeFirst, TypeSecond:
		if !lastDelivery.IsZero() {
			return false
		}
		if def.Schedule == ScheduleFixed {
			return !def.FixedDate.IsZero() && !now.Before(def.FixedDate)
		}
		if availableTime.IsZero() {
			return false
		}
		return now.Sub(availableTime) >= def.Offset

	case TypeRecurring:
		if availableTime.IsZero() {
			return false
		}
		base := availableTime
		if lastDelivery.After(base) {
			base = lastDelivery
		}
		return now.Sub(base) >= def.Offset
	}
	return false
}

// dedupeSince returns the ledger look-back window for a type: non-recurring
// reminders deduplicate against all prior history, recurring ones only within
// the current interval.
func dedupeSince(def ReminderDefinition, now time.Time) time.Time {
	if def.Type == TypeRecurring {
		return now.Add(-def.Offset)
	}
	return time.Time{}
}

package automation

import (
	"testing"
	"time"

	"github.com/abinesh-lmsace/pulse/core"
)

func validDefinition(typ ReminderType) ReminderDefinition {
	def := ReminderDefinition{
		Type:       typ,
		Enabled:    true,
		Recipients: []int{5},
		Schedule:   ScheduleRelative,
		Subject:    "subject",
		Content:    "content",
	}
	if typ == TypeInvitation {
		def.Subject, def.Content = "", ""
	}
	return def
}

func TestReminderDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ReminderDefinition)
		typ     ReminderType
		wantErr bool
		field   string
	}{
		{name: "valid relative", typ: TypeFirst},
		{name: "valid invitation without subject", typ: TypeInvitation},
		{name: "valid recurring", typ: TypeRecurring},
		{
			name: "disabled definitions always pass",
			typ:  TypeFirst,
			mutate: func(def *ReminderDefinition) {
				def.Enabled = false
				def.Subject = ""
				def.Recipients = nil
			},
		},
		{
			name:    "missing subject",
			typ:     TypeSecond,
			mutate:  func(def *ReminderDefinition) { def.Subject = "  " },
			wantErr: true,
			field:   "subject",
		},
		{
			name:    "missing content",
			typ:     TypeFirst,
			mutate:  func(def *ReminderDefinition) { def.Content = "" },
			wantErr: true,
			field:   "content",
		},
		{
			name:    "missing recipients",
			typ:     TypeFirst,
			mutate:  func(def *ReminderDefinition) { def.Recipients = nil },
			wantErr: true,
			field:   "recipients",
		},
		{
			name:    "fixed schedule without date",
			typ:     TypeFirst,
			mutate:  func(def *ReminderDefinition) { def.Schedule = ScheduleFixed },
			wantErr: true,
			field:   "fixeddate",
		},
		{
			name: "fixed schedule with date",
			typ:  TypeFirst,
			mutate: func(def *ReminderDefinition) {
				def.Schedule = ScheduleFixed
				def.FixedDate = time.Now()
			},
		},
		{
			name:    "negative relative offset",
			typ:     TypeSecond,
			mutate:  func(def *ReminderDefinition) { def.Offset = -time.Hour },
			wantErr: true,
			field:   "relativedate",
		},
		{
			name:    "negative recurring interval",
			typ:     TypeRecurring,
			mutate:  func(def *ReminderDefinition) { def.Offset = -time.Minute },
			wantErr: true,
			field:   "relativedate",
		},
		{
			name:    "unknown type",
			typ:     ReminderType("nudge"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition(tt.typ)
			if tt.mutate != nil {
				tt.mutate(&def)
			}

			err := def.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if tt.field == "" {
				return
			}
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("Validate() = %T, want *core.ValidationError", err)
			}
			found := false
			for _, fld := range vErr.Fields {
				if fld.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() fields %v missing %q", vErr.Fields, tt.field)
			}
		})
	}
}

func TestValidateInstance(t *testing.T) {
	inst := Instance{
		ActivityID: 77,
		Course:     Course{ID: 10},
		Reminders: map[ReminderType]ReminderDefinition{
			TypeFirst: validDefinition(TypeFirst),
		},
	}
	if err := ValidateInstance(inst); err != nil {
		t.Fatalf("ValidateInstance() = %v, want nil", err)
	}

	t.Run("no course activity", func(t *testing.T) {
		bad := inst
		bad.ActivityID = 0
		if err := ValidateInstance(bad); err == nil {
			t.Error("ValidateInstance() = nil, want error")
		}
	})

	t.Run("definition keyed under wrong type", func(t *testing.T) {
		bad := inst
		bad.Reminders = map[ReminderType]ReminderDefinition{
			TypeSecond: validDefinition(TypeFirst),
		}
		if err := ValidateInstance(bad); err == nil {
			t.Error("ValidateInstance() = nil, want error")
		}
	})

	t.Run("invalid definition propagates", func(t *testing.T) {
		def := validDefinition(TypeFirst)
		def.Subject = ""
		bad := inst
		bad.Reminders = map[ReminderType]ReminderDefinition{TypeFirst: def}
		if err := ValidateInstance(bad); err == nil {
			t.Error("ValidateInstance() = nil, want error")
		}
	})
}

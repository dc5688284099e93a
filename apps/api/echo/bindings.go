package echoapi

import (
	"time"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

type (
	coursePayload struct {
		ID        int       `json:"id"`
		FullName  string    `json:"full_name"`
		ShortName string    `json:"short_name"`
		Visible   bool      `json:"visible"`
		GroupMode int       `json:"group_mode"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
	}

	reminderPayload struct {
		Enabled       bool      `json:"enabled"`
		Recipients    []int     `json:"recipients"`
		Schedule      int       `json:"schedule"`
		FixedDate     time.Time `json:"fixed_date"`
		OffsetSecs    int64     `json:"offset_secs"`
		Subject       string    `json:"subject"`
		Content       string    `json:"content"`
		ContentFormat int       `json:"content_format"`
	}

	instancePayload struct {
		Name            string                     `json:"name" validate:"required"`
		ActivityID      int                        `json:"activity_id" validate:"required"`
		ActivityName    string                     `json:"activity_name"`
		ActivityVisible bool                       `json:"activity_visible"`
		Course          coursePayload              `json:"course"`
		ContextPath     []int                      `json:"context_path"`
		Enabled         bool                       `json:"enabled"`
		SenderID        int                        `json:"sender_id"`
		Content         string                     `json:"content"`
		CreditScore     float64                    `json:"credit_score" validate:"gte=0"`
		ReactionType    string                     `json:"reaction_type" validate:"omitempty,oneof=complete approve rate"`
		Conditions      map[string]bool            `json:"conditions"`
		WatchActivities []int                      `json:"watch_activities"`
		Reminders       map[string]reminderPayload `json:"reminders"`
	}

	instanceResponse struct {
		ID int `json:"id"`
		instancePayload
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	deliveryResponse struct {
		UserID      int       `json:"user_id"`
		Type        string    `json:"type"`
		ForUserID   int       `json:"for_user_id,omitempty"`
		Status      string    `json:"status"`
		DeliveredAt time.Time `json:"delivered_at,omitempty"`
	}

	reportResponse struct {
		InstanceID int                `json:"instance_id"`
		Name       string             `json:"name"`
		Delivered  map[string]int     `json:"delivered"`
		Pending    map[string]int     `json:"pending"`
		Records    []deliveryResponse `json:"records"`
	}

	summaryResponse struct {
		Instances int      `json:"instances"`
		Sent      int      `json:"sent"`
		Skipped   int      `json:"skipped"`
		Failed    int      `json:"failed"`
		Warnings  []string `json:"warnings,omitempty"`
	}
)

func (p instancePayload) toInstance(id int) automation.Instance {
	inst := automation.Instance{
		ID:              id,
		Name:            p.Name,
		ActivityID:      p.ActivityID,
		ActivityName:    p.ActivityName,
		ActivityVisible: p.ActivityVisible,
		Course: automation.Course{
			ID:        p.Course.ID,
			FullName:  p.Course.FullName,
			ShortName: p.Course.ShortName,
			Visible:   p.Course.Visible,
			GroupMode: automation.GroupMode(p.Course.GroupMode),
			StartDate: p.Course.StartDate,
			EndDate:   p.Course.EndDate,
		},
		ContextPath:     p.ContextPath,
		Enabled:         p.Enabled,
		SenderID:        p.SenderID,
		Content:         p.Content,
		CreditScore:     p.CreditScore,
		ReactionType:    p.ReactionType,
		Conditions:      p.Conditions,
		WatchActivities: p.WatchActivities,
		Reminders:       make(map[automation.ReminderType]automation.ReminderDefinition, len(p.Reminders)),
	}
	for name, rp := range p.Reminders {
		typ := automation.ReminderType(name)
		inst.Reminders[typ] = automation.ReminderDefinition{
			Type:          typ,
			Enabled:       rp.Enabled,
			Recipients:    rp.Recipients,
			Schedule:      automation.Schedule(rp.Schedule),
			FixedDate:     rp.FixedDate,
			Offset:        time.Duration(rp.OffsetSecs) * time.Second,
			Subject:       rp.Subject,
			Content:       rp.Content,
			ContentFormat: rp.ContentFormat,
		}
	}
	return inst
}

func toInstanceResponse(inst automation.Instance) instanceResponse {
	payload := instancePayload{
		Name:            inst.Name,
		ActivityID:      inst.ActivityID,
		ActivityName:    inst.ActivityName,
		ActivityVisible: inst.ActivityVisible,
		Course: coursePayload{
			ID:        inst.Course.ID,
			FullName:  inst.Course.FullName,
			ShortName: inst.Course.ShortName,
			Visible:   inst.Course.Visible,
			GroupMode: int(inst.Course.GroupMode),
			StartDate: inst.Course.StartDate,
			EndDate:   inst.Course.EndDate,
		},
		ContextPath:     inst.ContextPath,
		Enabled:         inst.Enabled,
		SenderID:        inst.SenderID,
		Content:         inst.Content,
		CreditScore:     inst.CreditScore,
		ReactionType:    inst.ReactionType,
		Conditions:      inst.Conditions,
		WatchActivities: inst.WatchActivities,
		Reminders:       make(map[string]reminderPayload, len(inst.Reminders)),
	}
	for typ, def := range inst.Reminders {
		payload.Reminders[string(typ)] = reminderPayload{
			Enabled:       def.Enabled,
			Recipients:    def.Recipients,
			Schedule:      int(def.Schedule),
			FixedDate:     def.FixedDate,
			OffsetSecs:    int64(def.Offset / time.Second),
			Subject:       def.Subject,
			Content:       def.Content,
			ContentFormat: def.ContentFormat,
		}
	}
	return instanceResponse{
		ID:              inst.ID,
		instancePayload: payload,
		CreatedAt:       inst.CreatedAt,
		UpdatedAt:       inst.UpdatedAt,
	}
}

func statusName(s automation.DeliveryStatus) string {
	if s == automation.StatusDelivered {
		return "delivered"
	}
	return "pending"
}

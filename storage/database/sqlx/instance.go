// Package sqlxrepos implements the pulse repositories on PostgreSQL through
// sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

type instanceRepository struct {
	db *sqlx.DB
}

func NewInstanceRepository(db *sqlx.DB) *instanceRepository {
	return &instanceRepository{db: db}
}

type instanceRow struct {
	ID              int            `db:"id"`
	Name            string         `db:"name"`
	ActivityID      int            `db:"activity_id"`
	ActivityName    string         `db:"activity_name"`
	ActivityVisible bool           `db:"activity_visible"`
	CourseID        int            `db:"course_id"`
	CourseFullName  string         `db:"course_fullname"`
	CourseShortName string         `db:"course_shortname"`
	CourseVisible   bool           `db:"course_visible"`
	CourseGroupMode int            `db:"course_groupmode"`
	CourseStartDate sql.NullTime   `db:"course_startdate"`
	CourseEndDate   sql.NullTime   `db:"course_enddate"`
	ContextPath     string         `db:"context_path"`
	Enabled         bool           `db:"enabled"`
	SenderID        int            `db:"sender_id"`
	Content         string         `db:"content"`
	CreditScore     float64        `db:"credit_score"`
	ReactionType    string         `db:"reaction_type"`
	Conditions      []byte         `db:"conditions"`
	WatchActivities []byte         `db:"watch_activities"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

type reminderRow struct {
	InstanceID    int          `db:"instance_id"`
	Type          string       `db:"type"`
	Enabled       bool         `db:"enabled"`
	Recipients    []byte       `db:"recipients"`
	Schedule      int          `db:"schedule"`
	FixedDate     sql.NullTime `db:"fixed_date"`
	OffsetSecs    int64        `db:"offset_secs"`
	Subject       string       `db:"subject"`
	Content       string       `db:"content"`
	ContentFormat int          `db:"content_format"`
}

const instanceColumns = `id, name, activity_id, activity_name, activity_visible,
	course_id, course_fullname, course_shortname, course_visible, course_groupmode,
	course_startdate, course_enddate, context_path, enabled, sender_id,
	content, credit_score, reaction_type,
	conditions, watch_activities, created_at, updated_at`

func (repo *instanceRepository) CreateInstance(ctx context.Context, inst automation.Instance) (automation.Instance, error) {
	conditions, watched, err := encodeInstanceJSON(inst)
	if err != nil {
		return automation.Instance{}, err
	}

	query := `INSERT INTO pulse_instance (name, activity_id, activity_name, activity_visible,
			course_id, course_fullname, course_shortname, course_visible, course_groupmode,
			course_startdate, course_enddate, context_path, enabled, sender_id,
			content, credit_score, reaction_type,
			conditions, watch_activities, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id`
	err = repo.db.QueryRowxContext(ctx, query,
		inst.Name, inst.ActivityID, inst.ActivityName, inst.ActivityVisible,
		inst.Course.ID, inst.Course.FullName, inst.Course.ShortName, inst.Course.Visible, int(inst.Course.GroupMode),
		nullTime(inst.Course.StartDate), nullTime(inst.Course.EndDate), encodePath(inst.ContextPath),
		inst.Enabled, inst.SenderID, inst.Content, inst.CreditScore, inst.ReactionType,
		conditions, watched, inst.CreatedAt, inst.UpdatedAt,
	).Scan(&inst.ID)
	if err != nil {
		return automation.Instance{}, errors.Wrap(err, "creating instance")
	}

	if err = repo.saveReminders(ctx, inst); err != nil {
		return automation.Instance{}, err
	}
	return inst, nil
}

func (repo *instanceRepository) UpdateInstance(ctx context.Context, inst automation.Instance) (automation.Instance, error) {
	conditions, watched, err := encodeInstanceJSON(inst)
	if err != nil {
		return automation.Instance{}, err
	}

	query := `UPDATE pulse_instance SET name = $2, activity_id = $3, activity_name = $4,
			activity_visible = $5, course_id = $6, course_fullname = $7, course_shortname = $8,
			course_visible = $9, course_groupmode = $10, course_startdate = $11, course_enddate = $12,
			context_path = $13, enabled = $14, sender_id = $15, content = $16,
			credit_score = $17, reaction_type = $18, conditions = $19,
			watch_activities = $20, updated_at = $21
		WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query,
		inst.ID, inst.Name, inst.ActivityID, inst.ActivityName, inst.ActivityVisible,
		inst.Course.ID, inst.Course.FullName, inst.Course.ShortName, inst.Course.Visible, int(inst.Course.GroupMode),
		nullTime(inst.Course.StartDate), nullTime(inst.Course.EndDate), encodePath(inst.ContextPath),
		inst.Enabled, inst.SenderID, inst.Content, inst.CreditScore, inst.ReactionType,
		conditions, watched, inst.UpdatedAt,
	)
	if err != nil {
		return automation.Instance{}, errors.Wrap(err, "updating instance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return automation.Instance{}, automation.ErrNotFound
	}

	if err = repo.saveReminders(ctx, inst); err != nil {
		return automation.Instance{}, err
	}
	return inst, nil
}

func (repo *instanceRepository) saveReminders(ctx context.Context, inst automation.Instance) error {
	query := `INSERT INTO pulse_reminder (instance_id, type, enabled, recipients, schedule,
			fixed_date, offset_secs, subject, content, content_format)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (instance_id, type) DO UPDATE SET
			enabled = EXCLUDED.enabled, recipients = EXCLUDED.recipients,
			schedule = EXCLUDED.schedule, fixed_date = EXCLUDED.fixed_date,
			offset_secs = EXCLUDED.offset_secs, subject = EXCLUDED.subject,
			content = EXCLUDED.content, content_format = EXCLUDED.content_format`

	for _, typ := range automation.AllTypes {
		def, ok := inst.Reminders[typ]
		if !ok {
			continue
		}
		recipients, err := json.Marshal(def.Recipients)
		if err != nil {
			return errors.Wrap(err, "encoding recipients")
		}
		_, err = repo.db.ExecContext(ctx, query,
			inst.ID, string(typ), def.Enabled, recipients, int(def.Schedule),
			nullTime(def.FixedDate), int64(def.Offset/time.Second),
			def.Subject, def.Content, def.ContentFormat,
		)
		if err != nil {
			return errors.Wrapf(err, "saving %s reminder", typ)
		}
	}
	return nil
}

func (repo *instanceRepository) GetInstance(ctx context.Context, id int) (automation.Instance, error) {
	var row instanceRow
	query := fmt.Sprintf(`SELECT %s FROM pulse_instance WHERE id = $1`, instanceColumns)
	if err := sqlx.GetContext(ctx, repo.db, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return automation.Instance{}, automation.ErrNotFound
		}
		return automation.Instance{}, errors.Wrap(err, "getting instance")
	}

	inst, err := row.toInstance()
	if err != nil {
		return automation.Instance{}, err
	}
	if err = repo.loadReminders(ctx, &inst); err != nil {
		return automation.Instance{}, err
	}
	return inst, nil
}

func (repo *instanceRepository) DeleteInstance(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM pulse_instance WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting instance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return automation.ErrNotFound
	}
	return nil
}

func (repo *instanceRepository) ActiveInstances(ctx context.Context, now time.Time, offset, limit int) ([]automation.Instance, error) {
	var rows []instanceRow
	query := fmt.Sprintf(`SELECT %s FROM pulse_instance
		WHERE enabled AND activity_visible AND course_visible
			AND (course_startdate IS NULL OR course_startdate <= $1)
			AND (course_enddate IS NULL OR course_enddate >= $1)
		ORDER BY id
		OFFSET $2 LIMIT NULLIF($3, 0)`, instanceColumns)
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, now, offset, limit); err != nil {
		return nil, errors.Wrap(err, "listing active instances")
	}
	return repo.buildInstances(ctx, rows)
}

func (repo *instanceRepository) CourseInstances(ctx context.Context, courseID int) ([]automation.Instance, error) {
	var rows []instanceRow
	query := fmt.Sprintf(`SELECT %s FROM pulse_instance WHERE course_id = $1 AND enabled ORDER BY id`, instanceColumns)
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, courseID); err != nil {
		return nil, errors.Wrap(err, "listing course instances")
	}
	return repo.buildInstances(ctx, rows)
}

func (repo *instanceRepository) buildInstances(ctx context.Context, rows []instanceRow) ([]automation.Instance, error) {
	instances := make([]automation.Instance, 0, len(rows))
	for _, row := range rows {
		inst, err := row.toInstance()
		if err != nil {
			return nil, err
		}
		if err = repo.loadReminders(ctx, &inst); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (repo *instanceRepository) loadReminders(ctx context.Context, inst *automation.Instance) error {
	var rows []reminderRow
	query := `SELECT instance_id, type, enabled, recipients, schedule, fixed_date,
			offset_secs, subject, content, content_format
		FROM pulse_reminder WHERE instance_id = $1`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, inst.ID); err != nil {
		return errors.Wrap(err, "loading reminders")
	}

	inst.Reminders = make(map[automation.ReminderType]automation.ReminderDefinition, len(rows))
	for _, row := range rows {
		var recipients []int
		if len(row.Recipients) > 0 {
			if err := json.Unmarshal(row.Recipients, &recipients); err != nil {
				return errors.Wrap(err, "decoding recipients")
			}
		}
		typ := automation.ReminderType(row.Type)
		inst.Reminders[typ] = automation.ReminderDefinition{
			Type:          typ,
			Enabled:       row.Enabled,
			Recipients:    recipients,
			Schedule:      automation.Schedule(row.Schedule),
			FixedDate:     row.FixedDate.Time,
			Offset:        time.Duration(row.OffsetSecs) * time.Second,
			Subject:       row.Subject,
			Content:       row.Content,
			ContentFormat: row.ContentFormat,
		}
	}
	return nil
}

func (row instanceRow) toInstance() (automation.Instance, error) {
	var conditions map[string]bool
	if len(row.Conditions) > 0 {
		if err := json.Unmarshal(row.Conditions, &conditions); err != nil {
			return automation.Instance{}, errors.Wrap(err, "decoding conditions")
		}
	}
	var watched []int
	if len(row.WatchActivities) > 0 {
		if err := json.Unmarshal(row.WatchActivities, &watched); err != nil {
			return automation.Instance{}, errors.Wrap(err, "decoding watch activities")
		}
	}
	return automation.Instance{
		ID:              row.ID,
		Name:            row.Name,
		ActivityID:      row.ActivityID,
		ActivityName:    row.ActivityName,
		ActivityVisible: row.ActivityVisible,
		Course: automation.Course{
			ID:        row.CourseID,
			FullName:  row.CourseFullName,
			ShortName: row.CourseShortName,
			Visible:   row.CourseVisible,
			GroupMode: automation.GroupMode(row.CourseGroupMode),
			StartDate: row.CourseStartDate.Time,
			EndDate:   row.CourseEndDate.Time,
		},
		ContextPath:     decodePath(row.ContextPath),
		Enabled:         row.Enabled,
		SenderID:        row.SenderID,
		Content:         row.Content,
		CreditScore:     row.CreditScore,
		ReactionType:    row.ReactionType,
		Conditions:      conditions,
		WatchActivities: watched,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

func encodeInstanceJSON(inst automation.Instance) (conditions, watched []byte, err error) {
	if inst.Conditions == nil {
		conditions = []byte("{}")
	} else if conditions, err = json.Marshal(inst.Conditions); err != nil {
		return nil, nil, errors.Wrap(err, "encoding conditions")
	}
	if inst.WatchActivities == nil {
		watched = []byte("[]")
	} else if watched, err = json.Marshal(inst.WatchActivities); err != nil {
		return nil, nil, errors.Wrap(err, "encoding watch activities")
	}
	return conditions, watched, nil
}

func encodePath(path []int) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "/")
}

func decodePath(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	path := make([]int, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.Atoi(p); err == nil {
			path = append(path, id)
		}
	}
	return path
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

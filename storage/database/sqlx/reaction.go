package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core/reaction"
)

type reactionRepository struct {
	db *sqlx.DB
}

func NewReactionRepository(db *sqlx.DB) *reactionRepository {
	return &reactionRepository{db: db}
}

func (repo *reactionRepository) CreateRecord(ctx context.Context, rec *reaction.Record) error {
	query := `INSERT INTO pulse_reaction (instance_id, activity_id, user_id, type, status, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		rec.InstanceID, rec.ActivityID, rec.UserID, string(rec.Type),
		int(rec.Status), rec.Rating, rec.CreatedAt).Scan(&rec.ID)
	return errors.Wrap(err, "creating reaction record")
}

func (repo *reactionRepository) GetRecord(ctx context.Context, id int64) (reaction.Record, error) {
	var row struct {
		ID         int64        `db:"id"`
		InstanceID int          `db:"instance_id"`
		ActivityID int          `db:"activity_id"`
		UserID     int          `db:"user_id"`
		Type       string       `db:"type"`
		Status     int          `db:"status"`
		Rating     int          `db:"rating"`
		CreatedAt  time.Time    `db:"created_at"`
		AppliedAt  sql.NullTime `db:"applied_at"`
	}

	query := `SELECT id, instance_id, activity_id, user_id, type, status, rating, created_at, applied_at
		FROM pulse_reaction WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.db, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return reaction.Record{}, reaction.ErrNotFound
		}
		return reaction.Record{}, errors.Wrap(err, "getting reaction record")
	}

	return reaction.Record{
		ID:         row.ID,
		InstanceID: row.InstanceID,
		ActivityID: row.ActivityID,
		UserID:     row.UserID,
		Type:       reaction.Type(row.Type),
		Status:     reaction.Status(row.Status),
		Rating:     row.Rating,
		CreatedAt:  row.CreatedAt,
		AppliedAt:  row.AppliedAt.Time,
	}, nil
}

func (repo *reactionRepository) MarkApplied(ctx context.Context, id int64, rating int, at time.Time) error {
	query := `UPDATE pulse_reaction SET status = $2, rating = $3, applied_at = $4 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id, int(reaction.StatusApplied), rating, at)
	if err != nil {
		return errors.Wrap(err, "marking reaction applied")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reaction.ErrNotFound
	}
	return nil
}

func (repo *reactionRepository) DeleteByInstance(ctx context.Context, instanceID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM pulse_reaction WHERE instance_id = $1`, instanceID)
	return errors.Wrap(err, "deleting reaction records")
}

// reactionSink applies reactions onto the host platform tables.
type reactionSink struct {
	db *sqlx.DB
}

func NewReactionSink(db *sqlx.DB) *reactionSink {
	return &reactionSink{db: db}
}

func (s *reactionSink) MarkCompleted(ctx context.Context, activityID, userID int) error {
	query := `INSERT INTO activity_completions (activity_id, user_id, completed)
		VALUES ($1, $2, true)
		ON CONFLICT (activity_id, user_id) DO UPDATE SET completed = true`
	_, err := s.db.ExecContext(ctx, query, activityID, userID)
	return errors.Wrap(err, "marking activity completed")
}

func (s *reactionSink) Approve(ctx context.Context, activityID, userID int) error {
	query := `INSERT INTO activity_approvals (activity_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (activity_id, user_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, activityID, userID)
	return errors.Wrap(err, "approving activity")
}

func (s *reactionSink) Rate(ctx context.Context, activityID, userID, value int) error {
	query := `INSERT INTO activity_ratings (activity_id, user_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (activity_id, user_id) DO UPDATE SET value = EXCLUDED.value`
	_, err := s.db.ExecContext(ctx, query, activityID, userID, value)
	return errors.Wrap(err, "rating activity")
}

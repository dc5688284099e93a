package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

type availabilityRepository struct {
	db *sqlx.DB
}

func NewAvailabilityRepository(db *sqlx.DB) *availabilityRepository {
	return &availabilityRepository{db: db}
}

type availabilityRow struct {
	InstanceID    int          `db:"instance_id"`
	UserID        int          `db:"user_id"`
	Available     bool         `db:"available"`
	AvailableTime sql.NullTime `db:"available_time"`
}

func (row availabilityRow) toRecord() automation.AvailabilityRecord {
	return automation.AvailabilityRecord{
		InstanceID:    row.InstanceID,
		UserID:        row.UserID,
		Available:     row.Available,
		AvailableTime: row.AvailableTime.Time,
	}
}

func (repo *availabilityRepository) Get(ctx context.Context, instanceID, userID int) (automation.AvailabilityRecord, error) {
	var row availabilityRow
	query := `SELECT instance_id, user_id, available, available_time
		FROM pulse_availability WHERE instance_id = $1 AND user_id = $2`
	if err := sqlx.GetContext(ctx, repo.db, &row, query, instanceID, userID); err != nil {
		if err == sql.ErrNoRows {
			return automation.AvailabilityRecord{}, automation.ErrNotFound
		}
		return automation.AvailabilityRecord{}, errors.Wrap(err, "getting availability")
	}
	return row.toRecord(), nil
}

func (repo *availabilityRepository) BulkGet(ctx context.Context, instanceID int, userIDs []int) (map[int]automation.AvailabilityRecord, error) {
	if len(userIDs) == 0 {
		return map[int]automation.AvailabilityRecord{}, nil
	}

	var rows []availabilityRow
	query := `SELECT instance_id, user_id, available, available_time
		FROM pulse_availability WHERE instance_id = $1 AND user_id = ANY($2)`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, instanceID, pq.Array(userIDs)); err != nil {
		return nil, errors.Wrap(err, "getting availability")
	}

	records := make(map[int]automation.AvailabilityRecord, len(rows))
	for _, row := range rows {
		records[row.UserID] = row.toRecord()
	}
	return records, nil
}

// MarkAvailable keeps the first recorded available time on conflict.
func (repo *availabilityRepository) MarkAvailable(ctx context.Context, instanceID, userID int, at time.Time) (automation.AvailabilityRecord, error) {
	var row availabilityRow
	query := `INSERT INTO pulse_availability (instance_id, user_id, available, available_time)
		VALUES ($1, $2, true, $3)
		ON CONFLICT (instance_id, user_id) DO UPDATE SET
			available = true,
			available_time = COALESCE(pulse_availability.available_time, EXCLUDED.available_time)
		RETURNING instance_id, user_id, available, available_time`
	if err := sqlx.GetContext(ctx, repo.db, &row, query, instanceID, userID, at); err != nil {
		return automation.AvailabilityRecord{}, errors.Wrap(err, "marking availability")
	}
	return row.toRecord(), nil
}

func (repo *availabilityRepository) SetStatus(ctx context.Context, instanceID, userID int, available bool) error {
	query := `INSERT INTO pulse_availability (instance_id, user_id, available)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_id, user_id) DO UPDATE SET available = EXCLUDED.available`
	_, err := repo.db.ExecContext(ctx, query, instanceID, userID, available)
	return errors.Wrap(err, "setting availability status")
}

func (repo *availabilityRepository) DeleteByInstance(ctx context.Context, instanceID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM pulse_availability WHERE instance_id = $1`, instanceID)
	return errors.Wrap(err, "deleting availability records")
}

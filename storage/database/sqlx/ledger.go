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

// ledgerRepository keeps the delivery ledger. Claim exclusivity rides on the
// partial unique index over pending rows, so concurrent claimers on one key
// get exactly one winner.
type ledgerRepository struct {
	db       sqlx.ExtContext
	beginner *sqlx.DB // nil inside a transaction
}

func NewLedgerRepository(db *sqlx.DB) *ledgerRepository {
	return &ledgerRepository{db: db, beginner: db}
}

func (repo *ledgerRepository) TryClaim(ctx context.Context, key automation.DeliveryKey, token string, now time.Time) (bool, error) {
	query := `INSERT INTO pulse_ledger (instance_id, user_id, type, for_user_id, status, claim_token, claimed_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM pulse_ledger
			WHERE instance_id = $1 AND user_id = $2 AND type = $3 AND for_user_id = $4
				AND (status = $5 OR (status = $8 AND $3 <> $9))
		)
		ON CONFLICT DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query,
		key.InstanceID, key.UserID, string(key.Type), key.ForUserID,
		int(automation.StatusPending), token, now,
		int(automation.StatusDelivered), string(automation.TypeRecurring),
	)
	if err != nil {
		return false, errors.Wrap(err, "claiming delivery")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "claiming delivery")
	}
	return n == 1, nil
}

func (repo *ledgerRepository) Commit(ctx context.Context, key automation.DeliveryKey, token string, at time.Time) error {
	query := `UPDATE pulse_ledger SET status = $6, delivered_at = $7, claim_token = ''
		WHERE instance_id = $1 AND user_id = $2 AND type = $3 AND for_user_id = $4
			AND claim_token = $5 AND status = $8`
	res, err := repo.db.ExecContext(ctx, query,
		key.InstanceID, key.UserID, string(key.Type), key.ForUserID, token,
		int(automation.StatusDelivered), at, int(automation.StatusPending),
	)
	if err != nil {
		return errors.Wrap(err, "committing delivery")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("committing delivery: claim not held for user %d", key.UserID)
	}
	return nil
}

func (repo *ledgerRepository) Release(ctx context.Context, key automation.DeliveryKey, token string) error {
	query := `DELETE FROM pulse_ledger
		WHERE instance_id = $1 AND user_id = $2 AND type = $3 AND for_user_id = $4
			AND claim_token = $5 AND status = $6`
	_, err := repo.db.ExecContext(ctx, query,
		key.InstanceID, key.UserID, string(key.Type), key.ForUserID, token, int(automation.StatusPending),
	)
	return errors.Wrap(err, "releasing claim")
}

func (repo *ledgerRepository) NotifiedAboutIDs(ctx context.Context, instanceID int, typ automation.ReminderType, delegateID int, since time.Time) (map[int]bool, error) {
	query := `SELECT DISTINCT for_user_id FROM pulse_ledger
		WHERE instance_id = $1 AND type = $2 AND user_id = $3 AND for_user_id <> 0
			AND status = $4 AND delivered_at >= $5`
	return repo.idSet(ctx, query, instanceID, string(typ), delegateID, int(automation.StatusDelivered), since)
}

func (repo *ledgerRepository) idSet(ctx context.Context, query string, args ...interface{}) (map[int]bool, error) {
	var ids []int
	if err := sqlx.SelectContext(ctx, repo.db, &ids, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying ledger ids")
	}
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (repo *ledgerRepository) LastDeliveries(ctx context.Context, instanceID int, typ automation.ReminderType, userIDs []int) (map[int]time.Time, error) {
	if len(userIDs) == 0 {
		return map[int]time.Time{}, nil
	}

	query := `SELECT user_id, MAX(delivered_at) AS delivered_at FROM pulse_ledger
		WHERE instance_id = $1 AND type = $2 AND for_user_id = 0 AND status = $3
			AND user_id = ANY($4)
		GROUP BY user_id`
	rows, err := repo.db.QueryxContext(ctx, query,
		instanceID, string(typ), int(automation.StatusDelivered), pq.Array(userIDs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying last deliveries")
	}
	defer func() { _ = rows.Close() }()

	last := make(map[int]time.Time)
	for rows.Next() {
		var (
			userID      int
			deliveredAt time.Time
		)
		if err = rows.Scan(&userID, &deliveredAt); err != nil {
			return nil, errors.Wrap(err, "scanning last delivery")
		}
		last[userID] = deliveredAt
	}
	return last, errors.Wrap(rows.Err(), "querying last deliveries")
}

func (repo *ledgerRepository) ReleaseAbandoned(ctx context.Context, before time.Time) (int, error) {
	query := `DELETE FROM pulse_ledger WHERE status = $1 AND claimed_at < $2`
	res, err := repo.db.ExecContext(ctx, query, int(automation.StatusPending), before)
	if err != nil {
		return 0, errors.Wrap(err, "releasing abandoned claims")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "releasing abandoned claims")
}

func (repo *ledgerRepository) Records(ctx context.Context, instanceID int) ([]automation.DeliveryRecord, error) {
	type row struct {
		ID          int64        `db:"id"`
		InstanceID  int          `db:"instance_id"`
		UserID      int          `db:"user_id"`
		Type        string       `db:"type"`
		ForUserID   int          `db:"for_user_id"`
		Status      int          `db:"status"`
		ClaimToken  string       `db:"claim_token"`
		ClaimedAt   sql.NullTime `db:"claimed_at"`
		DeliveredAt sql.NullTime `db:"delivered_at"`
	}

	var rows []row
	query := `SELECT id, instance_id, user_id, type, for_user_id, status, claim_token, claimed_at, delivered_at
		FROM pulse_ledger WHERE instance_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, query, instanceID); err != nil {
		return nil, errors.Wrap(err, "querying ledger records")
	}

	records := make([]automation.DeliveryRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, automation.DeliveryRecord{
			ID: r.ID,
			Key: automation.DeliveryKey{
				InstanceID: r.InstanceID,
				UserID:     r.UserID,
				Type:       automation.ReminderType(r.Type),
				ForUserID:  r.ForUserID,
			},
			Status:      automation.DeliveryStatus(r.Status),
			ClaimToken:  r.ClaimToken,
			ClaimedAt:   r.ClaimedAt.Time,
			DeliveredAt: r.DeliveredAt.Time,
		})
	}
	return records, nil
}

func (repo *ledgerRepository) DeleteByInstance(ctx context.Context, instanceID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM pulse_ledger WHERE instance_id = $1`, instanceID)
	return errors.Wrap(err, "deleting ledger records")
}

func (repo *ledgerRepository) DeleteByInstanceType(ctx context.Context, instanceID int, typ automation.ReminderType) error {
	_, err := repo.db.ExecContext(ctx,
		`DELETE FROM pulse_ledger WHERE instance_id = $1 AND type = $2`, instanceID, string(typ))
	return errors.Wrap(err, "deleting ledger records")
}

func (repo *ledgerRepository) Transact(ctx context.Context, fn func(automation.LedgerRepository) error) error {
	if repo.beginner == nil {
		return fn(repo)
	}

	tx, err := repo.beginner.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(&ledgerRepository{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

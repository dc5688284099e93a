package inmemdb

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

type ledgerRepository struct {
	db *ledgerTable
}

func NewLedgerRepository(db *DB) automation.LedgerRepository {
	return &ledgerRepository{db: db.ledger}
}

func (repo *ledgerRepository) TryClaim(_ context.Context, key automation.DeliveryKey, token string, now time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, rec := range repo.db.records {
		if rec.Key != key {
			continue
		}
		if rec.Status == automation.StatusPending {
			return false, nil
		}
		if rec.Status == automation.StatusDelivered && key.Type != automation.TypeRecurring {
			return false, nil
		}
	}

	repo.db.pkCount++
	repo.db.records = append(repo.db.records, &automation.DeliveryRecord{
		ID:         repo.db.pkCount,
		Key:        key,
		Status:     automation.StatusPending,
		ClaimToken: token,
		ClaimedAt:  now,
	})
	return true, nil
}

func (repo *ledgerRepository) Commit(_ context.Context, key automation.DeliveryKey, token string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, rec := range repo.db.records {
		if rec.Key == key && rec.ClaimToken == token && rec.Status == automation.StatusPending {
			rec.Status = automation.StatusDelivered
			rec.DeliveredAt = at
			rec.ClaimToken = ""
			return nil
		}
	}
	return errors.Errorf("committing delivery: claim not held for user %d", key.UserID)
}

func (repo *ledgerRepository) Release(_ context.Context, key automation.DeliveryKey, token string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, rec := range repo.db.records {
		if rec.Key == key && rec.ClaimToken == token && rec.Status == automation.StatusPending {
			repo.db.records = append(repo.db.records[:i], repo.db.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (repo *ledgerRepository) NotifiedAboutIDs(_ context.Context, instanceID int, typ automation.ReminderType, delegateID int, since time.Time) (map[int]bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ids := make(map[int]bool)
	for _, rec := range repo.db.records {
		if rec.Key.InstanceID == instanceID && rec.Key.Type == typ && rec.Key.UserID == delegateID &&
			rec.Key.ForUserID != 0 && rec.Status == automation.StatusDelivered && !rec.DeliveredAt.Before(since) {
			ids[rec.Key.ForUserID] = true
		}
	}
	return ids, nil
}

func (repo *ledgerRepository) LastDeliveries(_ context.Context, instanceID int, typ automation.ReminderType, userIDs []int) (map[int]time.Time, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	wanted := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	last := make(map[int]time.Time)
	for _, rec := range repo.db.records {
		if rec.Key.InstanceID == instanceID && rec.Key.Type == typ && rec.Key.ForUserID == 0 &&
			rec.Status == automation.StatusDelivered && wanted[rec.Key.UserID] {
			if rec.DeliveredAt.After(last[rec.Key.UserID]) {
				last[rec.Key.UserID] = rec.DeliveredAt
			}
		}
	}
	return last, nil
}

func (repo *ledgerRepository) ReleaseAbandoned(_ context.Context, before time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var (
		kept  []*automation.DeliveryRecord
		swept int
	)
	for _, rec := range repo.db.records {
		if rec.Status == automation.StatusPending && rec.ClaimedAt.Before(before) {
			swept++
			continue
		}
		kept = append(kept, rec)
	}
	repo.db.records = kept
	return swept, nil
}

func (repo *ledgerRepository) Records(_ context.Context, instanceID int) ([]automation.DeliveryRecord, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var records []automation.DeliveryRecord
	for _, rec := range repo.db.records {
		if rec.Key.InstanceID == instanceID {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (repo *ledgerRepository) DeleteByInstance(_ context.Context, instanceID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var kept []*automation.DeliveryRecord
	for _, rec := range repo.db.records {
		if rec.Key.InstanceID != instanceID {
			kept = append(kept, rec)
		}
	}
	repo.db.records = kept
	return nil
}

func (repo *ledgerRepository) DeleteByInstanceType(_ context.Context, instanceID int, typ automation.ReminderType) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var kept []*automation.DeliveryRecord
	for _, rec := range repo.db.records {
		if rec.Key.InstanceID != instanceID || rec.Key.Type != typ {
			kept = append(kept, rec)
		}
	}
	repo.db.records = kept
	return nil
}

// Transact serializes transactional sequences. Rollback is not simulated;
// callers that fail mid-sequence release their own claims.
func (repo *ledgerRepository) Transact(_ context.Context, fn func(automation.LedgerRepository) error) error {
	repo.db.txMutex.Lock()
	defer repo.db.txMutex.Unlock()
	return fn(repo)
}

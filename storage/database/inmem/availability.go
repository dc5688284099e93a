package inmemdb

import (
	"context"
	"time"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

type availabilityRepository struct {
	db *availabilityTable
}

func NewAvailabilityRepository(db *DB) automation.AvailabilityRepository {
	return &availabilityRepository{db: db.availability}
}

func (repo *availabilityRepository) Get(_ context.Context, instanceID, userID int) (automation.AvailabilityRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.table[availabilityKey{instanceID, userID}]; ok {
		return *rec, nil
	}
	return automation.AvailabilityRecord{}, automation.ErrNotFound
}

func (repo *availabilityRepository) BulkGet(_ context.Context, instanceID int, userIDs []int) (map[int]automation.AvailabilityRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make(map[int]automation.AvailabilityRecord, len(userIDs))
	for _, userID := range userIDs {
		if rec, ok := repo.db.table[availabilityKey{instanceID, userID}]; ok {
			records[userID] = *rec
		}
	}
	return records, nil
}

func (repo *availabilityRepository) MarkAvailable(_ context.Context, instanceID, userID int, at time.Time) (automation.AvailabilityRecord, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := availabilityKey{instanceID, userID}
	rec, ok := repo.db.table[key]
	if !ok {
		rec = &automation.AvailabilityRecord{InstanceID: instanceID, UserID: userID}
		repo.db.table[key] = rec
	}
	rec.Available = true
	if rec.AvailableTime.IsZero() {
		rec.AvailableTime = at
	}
	return *rec, nil
}

func (repo *availabilityRepository) SetStatus(_ context.Context, instanceID, userID int, available bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := availabilityKey{instanceID, userID}
	rec, ok := repo.db.table[key]
	if !ok {
		rec = &automation.AvailabilityRecord{InstanceID: instanceID, UserID: userID}
		repo.db.table[key] = rec
	}
	rec.Available = available
	return nil
}

func (repo *availabilityRepository) DeleteByInstance(_ context.Context, instanceID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for key := range repo.db.table {
		if key.instanceID == instanceID {
			delete(repo.db.table, key)
		}
	}
	return nil
}

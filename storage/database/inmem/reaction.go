package inmemdb

import (
	"context"
	"time"

	"github.com/abinesh-lmsace/pulse/core/reaction"
)

type reactionRepository struct {
	db *reactionTable
}

func NewReactionRepository(db *DB) reaction.Repository {
	return &reactionRepository{db: db.reaction}
}

func (repo *reactionRepository) CreateRecord(_ context.Context, rec *reaction.Record) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pkCount++
	rec.ID = repo.db.pkCount
	r := *rec
	repo.db.table[rec.ID] = &r
	return nil
}

func (repo *reactionRepository) GetRecord(_ context.Context, id int64) (reaction.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return *rec, nil
	}
	return reaction.Record{}, reaction.ErrNotFound
}

func (repo *reactionRepository) MarkApplied(_ context.Context, id int64, rating int, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return reaction.ErrNotFound
	}
	rec.Status = reaction.StatusApplied
	rec.Rating = rating
	rec.AppliedAt = at
	return nil
}

func (repo *reactionRepository) DeleteByInstance(_ context.Context, instanceID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, rec := range repo.db.table {
		if rec.InstanceID == instanceID {
			delete(repo.db.table, id)
		}
	}
	return nil
}

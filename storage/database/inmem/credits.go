package inmemdb

import (
	"context"

	"github.com/abinesh-lmsace/pulse/core/credits"
)

type creditsRepository struct {
	db *creditsTable
}

func NewCreditsRepository(db *DB) credits.Repository {
	return &creditsRepository{db: db.credits}
}

func (repo *creditsRepository) HasAward(_ context.Context, instanceID, userID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.awards[creditKey{instanceID, userID}]
	return ok, nil
}

func (repo *creditsRepository) CreateAward(_ context.Context, award *credits.Award) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pkCount++
	award.ID = repo.db.pkCount
	a := *award
	repo.db.awards[creditKey{award.InstanceID, award.UserID}] = &a
	return nil
}

func (repo *creditsRepository) TotalCredits(_ context.Context, userID int) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var total float64
	for _, award := range repo.db.awards {
		if award.UserID == userID {
			total += award.Amount
		}
	}
	return total, nil
}

func (repo *creditsRepository) DeleteByInstance(_ context.Context, instanceID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for key := range repo.db.awards {
		if key.instanceID == instanceID {
			delete(repo.db.awards, key)
		}
	}
	return nil
}

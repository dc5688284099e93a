package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/abinesh-lmsace/pulse/core/automation"
)

type instanceRepository struct {
	db *instanceTable
}

func NewInstanceRepository(db *DB) automation.InstanceRepository {
	return &instanceRepository{db: db.instance}
}

func (repo *instanceRepository) CreateInstance(_ context.Context, inst automation.Instance) (automation.Instance, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pkCount++
	inst.ID = repo.db.pkCount
	repo.db.table[inst.ID] = &inst
	return inst, nil
}

func (repo *instanceRepository) UpdateInstance(_ context.Context, inst automation.Instance) (automation.Instance, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[inst.ID]; !ok {
		return automation.Instance{}, automation.ErrNotFound
	}
	repo.db.table[inst.ID] = &inst
	return inst, nil
}

func (repo *instanceRepository) GetInstance(_ context.Context, id int) (automation.Instance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if inst, ok := repo.db.table[id]; ok {
		return *inst, nil
	}
	return automation.Instance{}, automation.ErrNotFound
}

func (repo *instanceRepository) DeleteInstance(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return automation.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *instanceRepository) ActiveInstances(_ context.Context, now time.Time, offset, limit int) ([]automation.Instance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var active []automation.Instance
	for _, inst := range repo.db.table {
		if inst.InWindow(now) {
			active = append(active, *inst)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	if offset >= len(active) {
		return nil, nil
	}
	active = active[offset:]
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

func (repo *instanceRepository) CourseInstances(_ context.Context, courseID int) ([]automation.Instance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var instances []automation.Instance
	for _, inst := range repo.db.table {
		if inst.Course.ID == courseID && inst.Enabled {
			instances = append(instances, *inst)
		}
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })
	return instances, nil
}

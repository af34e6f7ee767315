package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/shule/core/sync"
)

type syncRepository struct {
	db *DB
}

var _ sync.Repository = (*syncRepository)(nil) // interface compliance check

func NewSyncRepository(db *DB) *syncRepository {
	return &syncRepository{db: db}
}

func (repo *syncRepository) CreateRun(ctx context.Context, run sync.Run) (sync.Run, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	run.ID = newID()
	repo.db.runs[run.ID] = &run
	return run, nil
}

func (repo *syncRepository) UpdateRun(ctx context.Context, run sync.Run) (sync.Run, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.runs[run.ID]; !ok {
		return sync.Run{}, sync.ErrRunNotFound
	}
	repo.db.runs[run.ID] = &run
	return run, nil
}

func (repo *syncRepository) GetRunByID(ctx context.Context, id string) (sync.Run, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if run, ok := repo.db.runs[id]; ok {
		return *run, nil
	}
	return sync.Run{}, sync.ErrRunNotFound
}

func (repo *syncRepository) QueryRuns(ctx context.Context, tenant string, filter sync.RunFilter) ([]sync.Run, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var out []sync.Run
	for _, run := range repo.db.runs {
		if run.Tenant != tenant {
			continue
		}
		if filter.IntegrationConfigID != "" && run.IntegrationConfigID != filter.IntegrationConfigID {
			continue
		}
		if filter.SyncType != "" && run.SyncType != filter.SyncType {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.Direction != "" && run.Direction != filter.Direction {
			continue
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (repo *syncRepository) CreateLog(ctx context.Context, entry sync.Log) (sync.Log, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	entry.ID = newID()
	repo.db.logs[entry.ID] = &entry
	return entry, nil
}

func (repo *syncRepository) QueryLogsByRunID(ctx context.Context, runID string) ([]sync.Log, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var out []sync.Log
	for _, entry := range repo.db.logs {
		if entry.RunID == runID {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (repo *syncRepository) CreateMapping(ctx context.Context, m sync.Mapping) (sync.Mapping, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.mappings {
		if existing.IntegrationConfigID != m.IntegrationConfigID {
			continue
		}
		if existing.LocalType == m.LocalType && existing.LocalID == m.LocalID {
			return sync.Mapping{}, sync.ErrMappingExists
		}
		if existing.ExternalType == m.ExternalType && existing.ExternalID == m.ExternalID {
			return sync.Mapping{}, sync.ErrMappingExists
		}
	}
	m.ID = newID()
	repo.db.mappings[m.ID] = &m
	return m, nil
}

func (repo *syncRepository) GetMappingByExternal(ctx context.Context, configID string, et sync.ExternalType, externalID string) (sync.Mapping, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, m := range repo.db.mappings {
		if m.IntegrationConfigID == configID && m.ExternalType == et && m.ExternalID == externalID {
			return *m, nil
		}
	}
	return sync.Mapping{}, sync.ErrMappingNotFound
}

func (repo *syncRepository) GetMappingByLocal(ctx context.Context, configID string, lt sync.LocalType, localID string) (sync.Mapping, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, m := range repo.db.mappings {
		if m.IntegrationConfigID == configID && m.LocalType == lt && m.LocalID == localID {
			return *m, nil
		}
	}
	return sync.Mapping{}, sync.ErrMappingNotFound
}

func (repo *syncRepository) QueryMappingsByConfigID(ctx context.Context, configID string) ([]sync.Mapping, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var out []sync.Mapping
	for _, m := range repo.db.mappings {
		if m.IntegrationConfigID == configID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (repo *syncRepository) TouchMapping(ctx context.Context, id string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	m, ok := repo.db.mappings[id]
	if !ok {
		return sync.ErrMappingNotFound
	}
	m.LastSyncedAt = at
	return nil
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/shule/core/integration"
)

type integrationRepository struct {
	db *DB
}

var _ integration.Repository = (*integrationRepository)(nil) // interface compliance check

func NewIntegrationRepository(db *DB) *integrationRepository {
	return &integrationRepository{db: db}
}

// SeedConfig registers a Config directly; test setup helper.
func (repo *integrationRepository) SeedConfig(cfg integration.Config) integration.Config {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = newID()
	}
	repo.db.configs[cfg.ID] = &cfg
	return cfg
}

func (repo *integrationRepository) GetConfigByID(ctx context.Context, id string) (integration.Config, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cfg, ok := repo.db.configs[id]; ok {
		return *cfg, nil
	}
	return integration.Config{}, integration.ErrNotFound
}

func (repo *integrationRepository) QueryConfigs(ctx context.Context, tenant string) ([]integration.Config, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var out []integration.Config
	for _, cfg := range repo.db.configs {
		if cfg.Tenant == tenant {
			out = append(out, *cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

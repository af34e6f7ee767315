package integration

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound = errors.New("integration config not found")
	ErrInactive = errors.New("integration config is not active")
)

type (
	Repository interface {
		GetConfigByID(ctx context.Context, id string) (Config, error)
		QueryConfigs(ctx context.Context, tenant string) ([]Config, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) GetByID(ctx context.Context, id string) (Config, error) {
	return svc.repo.GetConfigByID(ctx, id)
}

// GetActive loads a Config and fails with ErrInactive unless its status allows
// connectors to run.
func (svc *Service) GetActive(ctx context.Context, id string) (Config, error) {
	cfg, err := svc.repo.GetConfigByID(ctx, id)
	if err != nil {
		return Config{}, err
	}
	if !cfg.Active() {
		return Config{}, ErrInactive
	}
	return cfg, nil
}

func (svc *Service) Query(ctx context.Context, tenant string) ([]Config, error) {
	return svc.repo.QueryConfigs(ctx, tenant)
}

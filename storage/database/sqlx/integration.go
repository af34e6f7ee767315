package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/integration"
)

type integrationRepository struct {
	db *sqlx.DB
}

var _ integration.Repository = (*integrationRepository)(nil) // interface compliance check

func NewIntegrationRepository(db *sqlx.DB) *integrationRepository {
	return &integrationRepository{db: db}
}

type configRow struct {
	ID        string    `db:"id"`
	Tenant    string    `db:"tenant"`
	Provider  string    `db:"provider"`
	Status    string    `db:"status"`
	Settings  []byte    `db:"settings"`
	CreatedAt null.Time `db:"created_at"`
	UpdatedAt null.Time `db:"updated_at"`
}

func (repo integrationRepository) unpack(row configRow) (integration.Config, error) {
	cfg := integration.Config{
		ID:        row.ID,
		Tenant:    row.Tenant,
		Provider:  integration.Provider(row.Provider),
		Status:    integration.Status(row.Status),
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
	if len(row.Settings) > 0 {
		if err := json.Unmarshal(row.Settings, &cfg.Settings); err != nil {
			return integration.Config{}, errors.Wrap(err, "decoding integration settings")
		}
	}
	return cfg, nil
}

func (repo integrationRepository) GetConfigByID(ctx context.Context, id string) (integration.Config, error) {
	if !isUUID(id) {
		return integration.Config{}, integration.ErrNotFound
	}
	var row configRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM integration_config WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return integration.Config{}, integration.ErrNotFound
		}
		return integration.Config{}, errors.Wrap(err, "finding integration config by ID")
	}
	return repo.unpack(row)
}

func (repo integrationRepository) QueryConfigs(ctx context.Context, tenant string) ([]integration.Config, error) {
	var rows []configRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM integration_config WHERE tenant = $1 ORDER BY created_at`, tenant)
	if err != nil {
		return nil, errors.Wrap(err, "querying integration configs")
	}
	cfgs := make([]integration.Config, 0, len(rows))
	for _, row := range rows {
		cfg, err := repo.unpack(row)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

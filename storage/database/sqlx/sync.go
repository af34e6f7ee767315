package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/sync"
)

type syncRepository struct {
	db *sqlx.DB
}

var _ sync.Repository = (*syncRepository)(nil) // interface compliance check

func NewSyncRepository(db *sqlx.DB) *syncRepository {
	return &syncRepository{db: db}
}

type runRow struct {
	ID                  string      `db:"id"`
	Tenant              string      `db:"tenant"`
	IntegrationConfigID string      `db:"integration_config_id"`
	SyncType            string      `db:"sync_type"`
	Direction           string      `db:"direction"`
	Status              string      `db:"status"`
	StartedAt           null.Time   `db:"started_at"`
	CompletedAt         null.Time   `db:"completed_at"`
	RecordsProcessed    int         `db:"records_processed"`
	RecordsSucceeded    int         `db:"records_succeeded"`
	RecordsFailed       int         `db:"records_failed"`
	ErrorMessage        null.String `db:"error_message"`
	TriggeredBy         null.String `db:"triggered_by"`
	CreatedAt           null.Time   `db:"created_at"`
}

func (repo syncRepository) packRun(run sync.Run) runRow {
	return runRow{
		ID:                  run.ID,
		Tenant:              run.Tenant,
		IntegrationConfigID: run.IntegrationConfigID,
		SyncType:            run.SyncType,
		Direction:           string(run.Direction),
		Status:              string(run.Status),
		StartedAt:           null.NewTime(run.StartedAt, !run.StartedAt.IsZero()),
		CompletedAt:         null.NewTime(run.CompletedAt, !run.CompletedAt.IsZero()),
		RecordsProcessed:    run.RecordsProcessed,
		RecordsSucceeded:    run.RecordsSucceeded,
		RecordsFailed:       run.RecordsFailed,
		ErrorMessage:        null.NewString(run.ErrorMessage, run.ErrorMessage != ""),
		TriggeredBy:         null.NewString(run.TriggeredBy, run.TriggeredBy != ""),
		CreatedAt:           null.NewTime(run.CreatedAt, !run.CreatedAt.IsZero()),
	}
}

func (repo syncRepository) unpackRun(row runRow) sync.Run {
	return sync.Run{
		ID:                  row.ID,
		Tenant:              row.Tenant,
		IntegrationConfigID: row.IntegrationConfigID,
		SyncType:            row.SyncType,
		Direction:           sync.Direction(row.Direction),
		Status:              sync.Status(row.Status),
		StartedAt:           row.StartedAt.Time,
		CompletedAt:         row.CompletedAt.Time,
		RecordsProcessed:    row.RecordsProcessed,
		RecordsSucceeded:    row.RecordsSucceeded,
		RecordsFailed:       row.RecordsFailed,
		ErrorMessage:        row.ErrorMessage.String,
		TriggeredBy:         row.TriggeredBy.String,
		CreatedAt:           row.CreatedAt.Time,
	}
}

func (repo syncRepository) CreateRun(ctx context.Context, run sync.Run) (sync.Run, error) {
	run.ID = newID()
	row := repo.packRun(run)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO sync_run (id, tenant, integration_config_id, sync_type, direction, status,
		                      started_at, completed_at, records_processed, records_succeeded, records_failed,
		                      error_message, triggered_by, created_at)
		VALUES (:id, :tenant, :integration_config_id, :sync_type, :direction, :status,
		        :started_at, :completed_at, :records_processed, :records_succeeded, :records_failed,
		        :error_message, :triggered_by, :created_at)`,
		row,
	)
	if err != nil {
		return sync.Run{}, errors.Wrap(err, "inserting sync run")
	}
	return run, nil
}

func (repo syncRepository) UpdateRun(ctx context.Context, run sync.Run) (sync.Run, error) {
	row := repo.packRun(run)
	_, err := repo.db.NamedExecContext(ctx, `
		UPDATE sync_run
		SET status = :status, started_at = :started_at, completed_at = :completed_at,
		    records_processed = :records_processed, records_succeeded = :records_succeeded,
		    records_failed = :records_failed, error_message = :error_message
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return sync.Run{}, errors.Wrap(err, "updating sync run")
	}
	return run, nil
}

func (repo syncRepository) GetRunByID(ctx context.Context, id string) (sync.Run, error) {
	if !isUUID(id) {
		return sync.Run{}, sync.ErrRunNotFound
	}
	var row runRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM sync_run WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return sync.Run{}, sync.ErrRunNotFound
		}
		return sync.Run{}, errors.Wrap(err, "finding sync run by ID")
	}
	return repo.unpackRun(row), nil
}

func (repo syncRepository) QueryRuns(ctx context.Context, tenant string, filter sync.RunFilter) ([]sync.Run, error) {
	query := `SELECT * FROM sync_run WHERE tenant = $1`
	args := []interface{}{tenant}
	arg := 2

	next := func(clause string, val interface{}) {
		query += clause + ordinal(arg)
		args = append(args, val)
		arg++
	}

	if filter.IntegrationConfigID != "" {
		next(` AND integration_config_id = `, filter.IntegrationConfigID)
	}
	if filter.SyncType != "" {
		next(` AND sync_type = `, filter.SyncType)
	}
	if filter.Status != "" {
		next(` AND status = `, string(filter.Status))
	}
	if filter.Direction != "" {
		next(` AND direction = `, string(filter.Direction))
	}
	query += ` ORDER BY created_at DESC`

	var rows []runRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying sync runs")
	}
	runs := make([]sync.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, repo.unpackRun(row))
	}
	return runs, nil
}

type logRow struct {
	ID         string      `db:"id"`
	RunID      string      `db:"run_id"`
	Level      string      `db:"level"`
	Message    string      `db:"message"`
	EntityType null.String `db:"entity_type"`
	EntityID   null.String `db:"entity_id"`
	ExternalID null.String `db:"external_id"`
	Metadata   []byte      `db:"metadata"`
	CreatedAt  null.Time   `db:"created_at"`
}

func (repo syncRepository) CreateLog(ctx context.Context, entry sync.Log) (sync.Log, error) {
	entry.ID = newID()

	var metadata []byte
	if len(entry.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return sync.Log{}, errors.Wrap(err, "encoding log metadata")
		}
	}

	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO sync_log (id, run_id, level, message, entity_type, entity_id, external_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.RunID, string(entry.Level), entry.Message,
		null.NewString(string(entry.EntityType), entry.EntityType != ""),
		null.NewString(entry.EntityID, entry.EntityID != ""),
		null.NewString(entry.ExternalID, entry.ExternalID != ""),
		metadata, entry.CreatedAt,
	)
	if err != nil {
		return sync.Log{}, errors.Wrap(err, "inserting sync log")
	}
	return entry, nil
}

func (repo syncRepository) QueryLogsByRunID(ctx context.Context, runID string) ([]sync.Log, error) {
	var rows []logRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM sync_log WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sync logs")
	}

	logs := make([]sync.Log, 0, len(rows))
	for _, row := range rows {
		entry := sync.Log{
			ID:         row.ID,
			RunID:      row.RunID,
			Level:      sync.Level(row.Level),
			Message:    row.Message,
			EntityType: sync.LocalType(row.EntityType.String),
			EntityID:   row.EntityID.String,
			ExternalID: row.ExternalID.String,
			CreatedAt:  row.CreatedAt.Time,
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, "decoding log metadata")
			}
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

type mappingRow struct {
	ID                  string    `db:"id"`
	IntegrationConfigID string    `db:"integration_config_id"`
	LocalType           string    `db:"local_type"`
	LocalID             string    `db:"local_id"`
	ExternalType        string    `db:"external_type"`
	ExternalID          string    `db:"external_id"`
	LastSyncedAt        null.Time `db:"last_synced_at"`
	CreatedAt           null.Time `db:"created_at"`
}

func (repo syncRepository) unpackMapping(row mappingRow) sync.Mapping {
	return sync.Mapping{
		ID:                  row.ID,
		IntegrationConfigID: row.IntegrationConfigID,
		LocalType:           sync.LocalType(row.LocalType),
		LocalID:             row.LocalID,
		ExternalType:        sync.ExternalType(row.ExternalType),
		ExternalID:          row.ExternalID,
		LastSyncedAt:        row.LastSyncedAt.Time,
		CreatedAt:           row.CreatedAt.Time,
	}
}

func (repo syncRepository) CreateMapping(ctx context.Context, m sync.Mapping) (sync.Mapping, error) {
	m.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO sync_mapping (id, integration_config_id, local_type, local_id, external_type, external_id, last_synced_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.IntegrationConfigID, string(m.LocalType), m.LocalID, string(m.ExternalType), m.ExternalID, m.LastSyncedAt, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sync.Mapping{}, sync.ErrMappingExists
		}
		return sync.Mapping{}, errors.Wrap(err, "inserting sync mapping")
	}
	return m, nil
}

func (repo syncRepository) GetMappingByExternal(ctx context.Context, configID string, et sync.ExternalType, externalID string) (sync.Mapping, error) {
	var row mappingRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM sync_mapping
		WHERE integration_config_id = $1 AND external_type = $2 AND external_id = $3`,
		configID, string(et), externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return sync.Mapping{}, sync.ErrMappingNotFound
		}
		return sync.Mapping{}, errors.Wrap(err, "finding sync mapping by external ID")
	}
	return repo.unpackMapping(row), nil
}

func (repo syncRepository) GetMappingByLocal(ctx context.Context, configID string, lt sync.LocalType, localID string) (sync.Mapping, error) {
	var row mappingRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM sync_mapping
		WHERE integration_config_id = $1 AND local_type = $2 AND local_id = $3`,
		configID, string(lt), localID)
	if err != nil {
		if err == sql.ErrNoRows {
			return sync.Mapping{}, sync.ErrMappingNotFound
		}
		return sync.Mapping{}, errors.Wrap(err, "finding sync mapping by local ID")
	}
	return repo.unpackMapping(row), nil
}

func (repo syncRepository) QueryMappingsByConfigID(ctx context.Context, configID string) ([]sync.Mapping, error) {
	var rows []mappingRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM sync_mapping WHERE integration_config_id = $1 ORDER BY created_at`, configID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sync mappings")
	}
	mappings := make([]sync.Mapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, repo.unpackMapping(row))
	}
	return mappings, nil
}

func (repo syncRepository) TouchMapping(ctx context.Context, id string, at time.Time) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE sync_mapping SET last_synced_at = $2 WHERE id = $1`, id, at)
	return errors.Wrap(err, "touching sync mapping")
}

package sync

import (
	"context"
	"time"
)

// Repository persists the engine's durable audit trail: runs, logs, mappings.
type Repository interface {
	CreateRun(ctx context.Context, run Run) (Run, error)
	UpdateRun(ctx context.Context, run Run) (Run, error)
	GetRunByID(ctx context.Context, id string) (Run, error)
	// QueryRuns applies AND operation on available RunFilter fields,
	// newest first.
	QueryRuns(ctx context.Context, tenant string, filter RunFilter) ([]Run, error)

	CreateLog(ctx context.Context, entry Log) (Log, error)
	QueryLogsByRunID(ctx context.Context, runID string) ([]Log, error)

	// CreateMapping fails with ErrMappingExists when either uniqueness
	// constraint is violated.
	CreateMapping(ctx context.Context, m Mapping) (Mapping, error)
	GetMappingByExternal(ctx context.Context, configID string, et ExternalType, externalID string) (Mapping, error)
	GetMappingByLocal(ctx context.Context, configID string, lt LocalType, localID string) (Mapping, error)
	QueryMappingsByConfigID(ctx context.Context, configID string) ([]Mapping, error)
	TouchMapping(ctx context.Context, id string, at time.Time) error
}

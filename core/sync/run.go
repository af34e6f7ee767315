package sync

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type (
	// Ledger records synchronization attempts. One Run is created per connector
	// invocation; a retried invocation gets a brand new Run.
	Ledger struct {
		repo Repository
	}

	// RunHandle is the single writer to one Run. Counters are tallied
	// in-process and flushed when the run reaches a terminal status, so there
	// is no read-modify-write on the row.
	RunHandle struct {
		ledger *Ledger
		run    Run

		processed int
		succeeded int
		failed    int
	}

	// Ref points a log entry at the record it concerns.
	Ref struct {
		EntityType LocalType
		EntityID   string
		ExternalID string
		Metadata   map[string]string
	}
)

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Create opens a new pending Run for the given integration config.
func (l *Ledger) Create(ctx context.Context, tenant, configID, syncType string, dir Direction, triggeredBy string) (*RunHandle, error) {
	run := Run{
		Tenant:              tenant,
		IntegrationConfigID: configID,
		SyncType:            syncType,
		Direction:           dir,
		Status:              StatusPending,
		TriggeredBy:         triggeredBy,
		CreatedAt:           time.Now().UTC(),
	}
	run, err := l.repo.CreateRun(ctx, run)
	if err != nil {
		return nil, errors.Wrap(err, "creating sync run")
	}
	return &RunHandle{ledger: l, run: run}, nil
}

func (l *Ledger) GetRunByID(ctx context.Context, id string) (Run, error) {
	return l.repo.GetRunByID(ctx, id)
}

func (l *Ledger) QueryRuns(ctx context.Context, tenant string, filter RunFilter) ([]Run, error) {
	return l.repo.QueryRuns(ctx, tenant, filter)
}

func (l *Ledger) QueryLogs(ctx context.Context, runID string) ([]Log, error) {
	return l.repo.QueryLogsByRunID(ctx, runID)
}

// Run returns a snapshot of the underlying Run with current tallies applied.
func (h *RunHandle) Run() Run {
	run := h.run
	run.RecordsProcessed = run.RecordsProcessed + h.processed
	run.RecordsSucceeded = run.RecordsSucceeded + h.succeeded
	run.RecordsFailed = run.RecordsFailed + h.failed
	return run
}

// Start transitions the run from pending to running. Any other source status
// is a connector bug.
func (h *RunHandle) Start(ctx context.Context) error {
	if h.run.Status != StatusPending {
		return &TransitionError{From: h.run.Status, To: StatusRunning}
	}
	h.run.Status = StatusRunning
	h.run.StartedAt = time.Now().UTC()

	run, err := h.ledger.repo.UpdateRun(ctx, h.run)
	if err != nil {
		return errors.Wrap(err, "starting sync run")
	}
	h.run = run
	return nil
}

// Complete transitions the run to completed and flushes the tallies.
func (h *RunHandle) Complete(ctx context.Context) error {
	return h.finalize(ctx, StatusCompleted, "")
}

// Fail transitions the run to failed with the captured message and flushes the
// tallies.
func (h *RunHandle) Fail(ctx context.Context, message string) error {
	return h.finalize(ctx, StatusFailed, message)
}

func (h *RunHandle) finalize(ctx context.Context, status Status, message string) error {
	if h.run.Status != StatusRunning {
		return &TransitionError{From: h.run.Status, To: status}
	}
	h.run.Status = status
	h.run.CompletedAt = time.Now().UTC()
	h.run.ErrorMessage = message
	h.run.RecordsProcessed += h.processed
	h.run.RecordsSucceeded += h.succeeded
	h.run.RecordsFailed += h.failed
	h.processed, h.succeeded, h.failed = 0, 0, 0

	run, err := h.ledger.repo.UpdateRun(ctx, h.run)
	if err != nil {
		return errors.Wrap(err, "finalizing sync run")
	}
	h.run = run
	return nil
}

// MarkProcessed tallies one record seen by the run.
func (h *RunHandle) MarkProcessed() { h.processed++ }

// MarkSucceeded tallies one record reconciled without error.
func (h *RunHandle) MarkSucceeded() { h.succeeded++ }

// MarkFailed tallies one record that failed reconciliation.
func (h *RunHandle) MarkFailed() { h.failed++ }

func (h *RunHandle) LogInfo(ctx context.Context, msg string, refs ...Ref) {
	h.log(ctx, LevelInfo, msg, refs)
}

func (h *RunHandle) LogWarn(ctx context.Context, msg string, refs ...Ref) {
	h.log(ctx, LevelWarn, msg, refs)
}

func (h *RunHandle) LogError(ctx context.Context, msg string, refs ...Ref) {
	h.log(ctx, LevelError, msg, refs)
}

// log appends a SyncLog row. Logging failures are swallowed: losing one
// diagnostic line must never abort a batch.
func (h *RunHandle) log(ctx context.Context, level Level, msg string, refs []Ref) {
	entry := Log{
		RunID:     h.run.ID,
		Level:     level,
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	}
	if len(refs) > 0 {
		ref := refs[0]
		entry.EntityType = ref.EntityType
		entry.EntityID = ref.EntityID
		entry.ExternalID = ref.ExternalID
		entry.Metadata = ref.Metadata
	}
	_, _ = h.ledger.repo.CreateLog(ctx, entry)
}

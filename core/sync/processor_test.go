package sync_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/storage/database/inmem"
)

func newProcessor(t *testing.T) (*sync.Processor, *sync.Ledger) {
	t.Helper()
	repo := inmemdb.NewSyncRepository(inmemdb.NewDB())
	ledger := sync.NewLedger(repo)
	return sync.NewProcessor(sync.NewReconciler(sync.NewMappingStore(repo))), ledger
}

func openRun(t *testing.T, ledger *sync.Ledger) *sync.RunHandle {
	t.Helper()
	h, err := ledger.Create(context.Background(), "acme", "cfg1", "oneroster_roster", sync.DirectionPull, "")
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	return h
}

func fetchRecords(recs ...sync.Record) func(ctx context.Context) ([]sync.Record, error) {
	return func(ctx context.Context) ([]sync.Record, error) { return recs, nil }
}

func TestProcessor_isolatesRecordFailures(t *testing.T) {
	proc, ledger := newProcessor(t)
	h := openRun(t, ledger)
	ctx := context.Background()

	var recs []sync.Record
	for _, key := range []string{"r1", "r2", "r3", "bad", "r4", "r5", "r6", "r7", "r8", "r9"} {
		recs = append(recs, fakeRecord{key: key, name: key})
	}
	d := sync.Descriptor{
		LocalType:    sync.LocalUser,
		ExternalType: sync.ExternalOneRosterUser,
		Create: func(ctx context.Context, rec sync.Record) (string, error) {
			if rec.ExternalKey() == "bad" {
				return "", errors.New("email already taken")
			}
			return "local-" + rec.ExternalKey(), nil
		},
		Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) { return false, nil },
	}

	err := proc.Run(ctx, h, "cfg1", []sync.Pass{{Name: "users", Descriptor: d, Fetch: fetchRecords(recs...)}})
	require.NoError(t, err)
	require.NoError(t, h.Complete(ctx))

	run := h.Run()
	assert.Equal(t, 10, run.RecordsProcessed)
	assert.Equal(t, 9, run.RecordsSucceeded)
	assert.Equal(t, 1, run.RecordsFailed)

	logs, err := ledger.QueryLogs(ctx, run.ID)
	require.NoError(t, err)
	var errLogs []sync.Log
	for _, l := range logs {
		if l.Level == sync.LevelError {
			errLogs = append(errLogs, l)
		}
	}
	require.Len(t, errLogs, 1)
	assert.Equal(t, "bad", errLogs[0].ExternalID)
	assert.Contains(t, errLogs[0].Message, "email already taken")
}

func TestProcessor_fetchFailureIsFatal(t *testing.T) {
	proc, ledger := newProcessor(t)
	h := openRun(t, ledger)
	ctx := context.Background()

	d := sync.Descriptor{
		LocalType:    sync.LocalUser,
		ExternalType: sync.ExternalOneRosterUser,
		Create:       func(ctx context.Context, rec sync.Record) (string, error) { return "u1", nil },
		Update:       func(ctx context.Context, localID string, rec sync.Record) (bool, error) { return false, nil },
	}
	passes := []sync.Pass{{
		Name:       "users",
		Descriptor: d,
		Fetch: func(ctx context.Context) ([]sync.Record, error) {
			return nil, errors.New("connection refused")
		},
	}}

	err := proc.Run(ctx, h, "cfg1", passes)
	require.Error(t, err)
	assert.True(t, sync.IsFatal(err))
	assert.Equal(t, 0, h.Run().RecordsProcessed)
}

func TestProcessor_fatalRecordErrorAbortsBatch(t *testing.T) {
	proc, ledger := newProcessor(t)
	h := openRun(t, ledger)
	ctx := context.Background()

	d := sync.Descriptor{
		LocalType:    sync.LocalUser,
		ExternalType: sync.ExternalOneRosterUser,
		Create: func(ctx context.Context, rec sync.Record) (string, error) {
			if rec.ExternalKey() == "r2" {
				return "", sync.Fatalf("token expired mid-run")
			}
			return "local-" + rec.ExternalKey(), nil
		},
		Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) { return false, nil },
	}
	passes := []sync.Pass{{
		Name:       "users",
		Descriptor: d,
		Fetch:      fetchRecords(fakeRecord{key: "r1"}, fakeRecord{key: "r2"}, fakeRecord{key: "r3"}),
	}}

	err := proc.Run(ctx, h, "cfg1", passes)
	require.Error(t, err)
	assert.True(t, sync.IsFatal(err))

	// r3 was never reached
	run := h.Run()
	assert.Equal(t, 2, run.RecordsProcessed)
	assert.Equal(t, 1, run.RecordsSucceeded)
}

func TestProcessor_skipAndExclude(t *testing.T) {
	proc, ledger := newProcessor(t)
	h := openRun(t, ledger)
	ctx := context.Background()

	d := sync.Descriptor{
		LocalType:    sync.LocalUser,
		ExternalType: sync.ExternalOneRosterUser,
		Create:       func(ctx context.Context, rec sync.Record) (string, error) { return "local-" + rec.ExternalKey(), nil },
		Update:       func(ctx context.Context, localID string, rec sync.Record) (bool, error) { return false, nil },
	}
	passes := []sync.Pass{{
		Name:       "users",
		Descriptor: d,
		Fetch: fetchRecords(
			fakeRecord{key: "deleted", name: "skip me"},
			fakeRecord{key: "noemail", name: "exclude me"},
			fakeRecord{key: "ok", name: "keep me"},
		),
		Skip: func(rec sync.Record) bool { return rec.ExternalKey() == "deleted" },
		Exclude: func(rec sync.Record) string {
			if rec.ExternalKey() == "noemail" {
				return "user has no email address"
			}
			return ""
		},
	}}

	require.NoError(t, proc.Run(ctx, h, "cfg1", passes))
	require.NoError(t, h.Complete(ctx))

	// skipped records are invisible; excluded ones count as processed only
	run := h.Run()
	assert.Equal(t, 2, run.RecordsProcessed)
	assert.Equal(t, 1, run.RecordsSucceeded)
	assert.Equal(t, 0, run.RecordsFailed)

	logs, err := ledger.QueryLogs(ctx, run.ID)
	require.NoError(t, err)
	var warns []sync.Log
	for _, l := range logs {
		if l.Level == sync.LevelWarn {
			warns = append(warns, l)
		}
	}
	require.Len(t, warns, 1)
	assert.Equal(t, "noemail", warns[0].ExternalID)
}

func TestProcessor_rejectsInvalidDescriptor(t *testing.T) {
	proc, ledger := newProcessor(t)
	h := openRun(t, ledger)

	passes := []sync.Pass{{
		Name: "broken",
		Descriptor: sync.Descriptor{
			LocalType:    sync.LocalUser,
			ExternalType: sync.ExternalOneRosterUser,
			// no handlers
		},
		Fetch: fetchRecords(),
	}}

	err := proc.Run(context.Background(), h, "cfg1", passes)
	require.Error(t, err)
	assert.True(t, sync.IsFatal(err))
}

func TestProcessor_passOrdering(t *testing.T) {
	proc, ledger := newProcessor(t)
	h := openRun(t, ledger)
	ctx := context.Background()

	var order []string
	mkPass := func(name string, lt sync.LocalType, et sync.ExternalType) sync.Pass {
		return sync.Pass{
			Name: name,
			Descriptor: sync.Descriptor{
				LocalType:    lt,
				ExternalType: et,
				Create: func(ctx context.Context, rec sync.Record) (string, error) {
					order = append(order, name)
					return name + "-local", nil
				},
				Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) { return false, nil },
			},
			Fetch: fetchRecords(fakeRecord{key: name + "-ext"}),
		}
	}

	passes := []sync.Pass{
		mkPass("orgs", sync.LocalSchool, sync.ExternalOneRosterOrg),
		mkPass("users", sync.LocalUser, sync.ExternalOneRosterUser),
		mkPass("classes", sync.LocalCourse, sync.ExternalOneRosterClass),
	}
	require.NoError(t, proc.Run(ctx, h, "cfg1", passes))
	assert.Equal(t, []string{"orgs", "users", "classes"}, order)
}

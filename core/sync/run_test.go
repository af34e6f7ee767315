package sync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/storage/database/inmem"
)

func newLedger() (*sync.Ledger, *inmemdb.DB) {
	db := inmemdb.NewDB()
	return sync.NewLedger(inmemdb.NewSyncRepository(db)), db
}

func TestLedger_runLifecycle(t *testing.T) {
	ledger, _ := newLedger()
	ctx := context.Background()

	h, err := ledger.Create(ctx, "acme", "cfg1", "oneroster_roster", sync.DirectionPull, "usr1")
	require.NoError(t, err)

	run := h.Run()
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, sync.StatusPending, run.Status)
	assert.Equal(t, "acme", run.Tenant)
	assert.Equal(t, "cfg1", run.IntegrationConfigID)
	assert.False(t, run.Status.Terminal())

	require.NoError(t, h.Start(ctx))
	assert.Equal(t, sync.StatusRunning, h.Run().Status)
	assert.False(t, h.Run().StartedAt.IsZero())

	h.MarkProcessed()
	h.MarkProcessed()
	h.MarkSucceeded()
	h.MarkFailed()

	require.NoError(t, h.Complete(ctx))
	run = h.Run()
	assert.Equal(t, sync.StatusCompleted, run.Status)
	assert.True(t, run.Status.Terminal())
	assert.False(t, run.CompletedAt.IsZero())
	assert.Equal(t, 2, run.RecordsProcessed)
	assert.Equal(t, 1, run.RecordsSucceeded)
	assert.Equal(t, 1, run.RecordsFailed)

	// tallies were flushed to the store
	stored, err := ledger.GetRunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.RecordsProcessed, stored.RecordsProcessed)
	assert.Equal(t, run.RecordsSucceeded, stored.RecordsSucceeded)
	assert.Equal(t, run.RecordsFailed, stored.RecordsFailed)
}

func TestLedger_invalidTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		prep func(t *testing.T, h *sync.RunHandle)
		call func(h *sync.RunHandle) error
		want *sync.TransitionError
	}{
		{
			name: "complete before start",
			prep: func(t *testing.T, h *sync.RunHandle) {},
			call: func(h *sync.RunHandle) error { return h.Complete(ctx) },
			want: &sync.TransitionError{From: sync.StatusPending, To: sync.StatusCompleted},
		},
		{
			name: "fail before start",
			prep: func(t *testing.T, h *sync.RunHandle) {},
			call: func(h *sync.RunHandle) error { return h.Fail(ctx, "boom") },
			want: &sync.TransitionError{From: sync.StatusPending, To: sync.StatusFailed},
		},
		{
			name: "double start",
			prep: func(t *testing.T, h *sync.RunHandle) { require.NoError(t, h.Start(ctx)) },
			call: func(h *sync.RunHandle) error { return h.Start(ctx) },
			want: &sync.TransitionError{From: sync.StatusRunning, To: sync.StatusRunning},
		},
		{
			name: "complete after complete",
			prep: func(t *testing.T, h *sync.RunHandle) {
				require.NoError(t, h.Start(ctx))
				require.NoError(t, h.Complete(ctx))
			},
			call: func(h *sync.RunHandle) error { return h.Complete(ctx) },
			want: &sync.TransitionError{From: sync.StatusCompleted, To: sync.StatusCompleted},
		},
		{
			name: "fail after complete",
			prep: func(t *testing.T, h *sync.RunHandle) {
				require.NoError(t, h.Start(ctx))
				require.NoError(t, h.Complete(ctx))
			},
			call: func(h *sync.RunHandle) error { return h.Fail(ctx, "boom") },
			want: &sync.TransitionError{From: sync.StatusCompleted, To: sync.StatusFailed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := newLedger()
			h, err := ledger.Create(ctx, "acme", "cfg1", "oneroster_roster", sync.DirectionPull, "")
			require.NoError(t, err)

			tt.prep(t, h)
			err = tt.call(h)
			var terr *sync.TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.want.From, terr.From)
			assert.Equal(t, tt.want.To, terr.To)
		})
	}
}

func TestRunHandle_failKeepsTallies(t *testing.T) {
	ledger, _ := newLedger()
	ctx := context.Background()

	h, err := ledger.Create(ctx, "acme", "cfg1", "classroom_roster", sync.DirectionPull, "")
	require.NoError(t, err)
	require.NoError(t, h.Start(ctx))

	h.MarkProcessed()
	h.MarkFailed()
	require.NoError(t, h.Fail(ctx, "provider exploded"))

	run := h.Run()
	assert.Equal(t, sync.StatusFailed, run.Status)
	assert.Equal(t, "provider exploded", run.ErrorMessage)
	assert.Equal(t, 1, run.RecordsProcessed)
	assert.Equal(t, 1, run.RecordsFailed)
}

func TestRunHandle_logs(t *testing.T) {
	ledger, _ := newLedger()
	ctx := context.Background()

	h, err := ledger.Create(ctx, "acme", "cfg1", "oneroster_roster", sync.DirectionPull, "")
	require.NoError(t, err)
	require.NoError(t, h.Start(ctx))

	h.LogInfo(ctx, "created user", sync.Ref{EntityType: sync.LocalUser, EntityID: "u1", ExternalID: "ext1"})
	h.LogWarn(ctx, "user has no email address", sync.Ref{EntityType: sync.LocalUser, ExternalID: "ext2"})
	h.LogError(ctx, "enrollment failed")
	require.NoError(t, h.Complete(ctx))

	logs, err := ledger.QueryLogs(ctx, h.Run().ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, sync.LevelInfo, logs[0].Level)
	assert.Equal(t, sync.LocalUser, logs[0].EntityType)
	assert.Equal(t, "u1", logs[0].EntityID)
	assert.Equal(t, "ext1", logs[0].ExternalID)
	assert.Equal(t, sync.LevelWarn, logs[1].Level)
	assert.Equal(t, sync.LevelError, logs[2].Level)
	assert.Empty(t, logs[2].EntityID)
}

func TestLedger_queryRunsFilter(t *testing.T) {
	ledger, _ := newLedger()
	ctx := context.Background()

	mkRun := func(tenant, configID, syncType string, dir sync.Direction, terminal func(*sync.RunHandle) error) {
		h, err := ledger.Create(ctx, tenant, configID, syncType, dir, "")
		require.NoError(t, err)
		require.NoError(t, h.Start(ctx))
		require.NoError(t, terminal(h))
	}
	complete := func(h *sync.RunHandle) error { return h.Complete(ctx) }
	fail := func(h *sync.RunHandle) error { return h.Fail(ctx, "boom") }

	mkRun("acme", "cfg1", "oneroster_roster", sync.DirectionPull, complete)
	mkRun("acme", "cfg1", "classroom_grades", sync.DirectionPush, fail)
	mkRun("acme", "cfg2", "oneroster_roster", sync.DirectionPull, complete)
	mkRun("globex", "cfg3", "oneroster_roster", sync.DirectionPull, complete)

	tests := []struct {
		name   string
		tenant string
		filter sync.RunFilter
		want   int
	}{
		{name: "all for tenant", tenant: "acme", want: 3},
		{name: "other tenant is invisible", tenant: "globex", want: 1},
		{name: "by config", tenant: "acme", filter: sync.RunFilter{IntegrationConfigID: "cfg1"}, want: 2},
		{name: "by sync type", tenant: "acme", filter: sync.RunFilter{SyncType: "classroom_grades"}, want: 1},
		{name: "by status", tenant: "acme", filter: sync.RunFilter{Status: sync.StatusFailed}, want: 1},
		{name: "by direction", tenant: "acme", filter: sync.RunFilter{Direction: sync.DirectionPush}, want: 1},
		{name: "no match", tenant: "acme", filter: sync.RunFilter{IntegrationConfigID: "cfg2", Status: sync.StatusFailed}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := ledger.QueryRuns(ctx, tt.tenant, tt.filter)
			require.NoError(t, err)
			assert.Len(t, runs, tt.want)
		})
	}
}

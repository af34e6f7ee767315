package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
)

func seedConfig(env *testEnv, tenant string) integration.Config {
	return env.intRepo.SeedConfig(integration.Config{
		Tenant:   tenant,
		Provider: integration.ProviderOneRoster,
		Status:   integration.StatusActive,
		Settings: integration.Settings{BaseURL: "https://roster.example.com"},
	})
}

func TestSyncApi_triggerSync(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "acme", "adminuser", "admin@acme.edu", "LeTemps", []string{user.RoleAdmin})
	student := env.createUser(t, "acme", "studentone", "lisa@acme.edu", "LeTemps", []string{user.RoleStudent})
	cfg := seedConfig(env, "acme")
	otherCfg := seedConfig(env, "globex")
	token := getToken(t, admin)

	tests := []struct {
		name       string
		path       string
		token      string
		wantCode   int
		wantMethod string
		stub       *stubConnector
	}{
		{name: "oneroster roster", path: "/v1/integrations/" + cfg.ID + "/sync/oneroster_roster", token: token, wantCode: 200, wantMethod: "SyncRoster", stub: env.oneroster},
		{name: "oneroster bundle", path: "/v1/integrations/" + cfg.ID + "/sync/oneroster_bundle", token: token, wantCode: 200, wantMethod: "SyncBundle", stub: env.oneroster},
		{name: "classroom roster", path: "/v1/integrations/" + cfg.ID + "/sync/classroom_roster", token: token, wantCode: 200, wantMethod: "SyncRoster", stub: env.classroom},
		{name: "classroom coursework", path: "/v1/integrations/" + cfg.ID + "/sync/classroom_coursework", token: token, wantCode: 200, wantMethod: "PushCoursework", stub: env.classroom},
		{name: "classroom grades", path: "/v1/integrations/" + cfg.ID + "/sync/classroom_grades", token: token, wantCode: 200, wantMethod: "PushGrades", stub: env.classroom},
		{name: "unknown type", path: "/v1/integrations/" + cfg.ID + "/sync/lol", token: token, wantCode: 400},
		{name: "not an admin", path: "/v1/integrations/" + cfg.ID + "/sync/oneroster_roster", token: getToken(t, student), wantCode: 403},
		{name: "other tenant config is invisible", path: "/v1/integrations/" + otherCfg.ID + "/sync/oneroster_roster", token: token, wantCode: 404},
		{name: "unknown config", path: "/v1/integrations/nope/sync/oneroster_roster", token: token, wantCode: 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, tt.token)
			env.server.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantMethod != "" {
				require.NotEmpty(t, tt.stub.calls)
				call := tt.stub.calls[len(tt.stub.calls)-1]
				assert.Equal(t, tt.wantMethod, call.method)
				assert.Equal(t, cfg.ID, call.configID)
				assert.Equal(t, admin.ID, call.triggeredBy)

				var run sync.Run
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
				assert.Equal(t, tt.stub.run.ID, run.ID)
			}
		})
	}
}

func TestSyncApi_runs(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "acme", "adminuser", "admin@acme.edu", "LeTemps", []string{user.RoleAdmin})
	token := getToken(t, admin)
	ctx := context.Background()

	mkRun := func(tenant string, fail bool) sync.Run {
		h, err := env.ledger.Create(ctx, tenant, "cfg1", "oneroster_roster", sync.DirectionPull, "")
		require.NoError(t, err)
		require.NoError(t, h.Start(ctx))
		h.LogInfo(ctx, "created user", sync.Ref{EntityType: sync.LocalUser, EntityID: "u1"})
		if fail {
			require.NoError(t, h.Fail(ctx, "boom"))
		} else {
			require.NoError(t, h.Complete(ctx))
		}
		return h.Run()
	}
	okRun := mkRun("acme", false)
	mkRun("acme", true)
	foreignRun := mkRun("globex", false)

	req, rec := newAuthRequest(http.MethodGet, "/v1/sync/runs", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var runs []sync.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	req, rec = newAuthRequest(http.MethodGet, "/v1/sync/runs?status=failed", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, sync.StatusFailed, runs[0].Status)

	req, rec = newAuthRequest(http.MethodGet, "/v1/sync/runs/"+okRun.ID+"/logs", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []sync.Log
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "created user", logs[0].Message)

	// other tenants' runs are hidden behind a 404
	req, rec = newAuthRequest(http.MethodGet, "/v1/sync/runs/"+foreignRun.ID, token)
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncApi_configsAndMappings(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "acme", "adminuser", "admin@acme.edu", "LeTemps", []string{user.RoleAdmin})
	token := getToken(t, admin)
	cfg := seedConfig(env, "acme")
	seedConfig(env, "globex")

	_, err := env.mappings.Create(context.Background(), cfg.ID, sync.LocalUser, "u1", sync.ExternalOneRosterUser, "ext1")
	require.NoError(t, err)

	req, rec := newAuthRequest(http.MethodGet, "/v1/integrations", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var configs []integration.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &configs))
	require.Len(t, configs, 1)
	assert.Equal(t, cfg.ID, configs[0].ID)

	req, rec = newAuthRequest(http.MethodGet, "/v1/integrations/"+cfg.ID+"/mappings", token)
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var mappings []sync.Mapping
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mappings))
	require.Len(t, mappings, 1)
	assert.Equal(t, "ext1", mappings[0].ExternalID)
}

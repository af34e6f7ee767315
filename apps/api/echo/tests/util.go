package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type connectorCall struct {
	method, configID, triggeredBy string
}

// stubConnector satisfies both connector slices the server needs and records
// every trigger.
type stubConnector struct {
	calls []connectorCall
	run   sync.Run
	err   error
}

func (s *stubConnector) record(method, configID, triggeredBy string) (sync.Run, error) {
	s.calls = append(s.calls, connectorCall{method, configID, triggeredBy})
	return s.run, s.err
}

func (s *stubConnector) SyncRoster(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	return s.record("SyncRoster", configID, triggeredBy)
}

func (s *stubConnector) SyncBundle(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	return s.record("SyncBundle", configID, triggeredBy)
}

func (s *stubConnector) PushCoursework(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	return s.record("PushCoursework", configID, triggeredBy)
}

func (s *stubConnector) PushGrades(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	return s.record("PushGrades", configID, triggeredBy)
}

type testEnv struct {
	server Server

	usrSvc    *user.Service
	intRepo   interface{ SeedConfig(integration.Config) integration.Config }
	ledger    *sync.Ledger
	mappings  *sync.MappingStore
	oneroster *stubConnector
	classroom *stubConnector
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db := inmemdb.NewDB()
	syncRepo := inmemdb.NewSyncRepository(db)
	intRepo := inmemdb.NewIntegrationRepository(db)

	env := &testEnv{
		usrSvc:    user.NewService(inmemdb.NewUserRepository(db)),
		intRepo:   intRepo,
		ledger:    sync.NewLedger(syncRepo),
		mappings:  sync.NewMappingStore(syncRepo),
		oneroster: &stubConnector{run: sync.Run{ID: "run1", Status: sync.StatusCompleted}},
		classroom: &stubConnector{run: sync.Run{ID: "run2", Status: sync.StatusCompleted}},
	}
	env.server = NewServer(&Options{
		DisableReqLogs: true,
		UserSvc:        env.usrSvc,
		IntegrationSvc: integration.NewService(intRepo),
		Ledger:         env.ledger,
		Mappings:       env.mappings,
		OneRoster:      env.oneroster,
		Classroom:      env.classroom,
		Logger:         nopLogger{},
	})
	return env
}

func (env *testEnv) createUser(t *testing.T, tenant, uname, email, pwd string, roles []string) user.User {
	t.Helper()
	usr, err := env.usrSvc.Create(core.WithTenant(context.Background(), tenant), user.NewUser{
		Name:            uname,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	require.NoError(t, err)
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

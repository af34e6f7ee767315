package oneroster

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	onerostersvc "github.com/trezcool/shule/services/oneroster"
	"github.com/trezcool/shule/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// stubSource serves a canned roster data set.
type stubSource struct {
	orgs        []onerostersvc.Org
	sessions    []onerostersvc.AcademicSession
	users       []onerostersvc.User
	classes     []onerostersvc.Class
	enrollments []onerostersvc.Enrollment

	usersErr error
}

func (s *stubSource) Orgs(context.Context) ([]onerostersvc.Org, error) { return s.orgs, nil }
func (s *stubSource) AcademicSessions(context.Context) ([]onerostersvc.AcademicSession, error) {
	return s.sessions, nil
}
func (s *stubSource) Users(context.Context) ([]onerostersvc.User, error) {
	return s.users, s.usersErr
}
func (s *stubSource) Classes(context.Context) ([]onerostersvc.Class, error) { return s.classes, nil }
func (s *stubSource) Enrollments(context.Context) ([]onerostersvc.Enrollment, error) {
	return s.enrollments, nil
}

type testEnv struct {
	db       *inmemdb.DB
	conn     *Connector
	ledger   *sync.Ledger
	mappings *sync.MappingStore
	users    *user.Service
	schools  *school.Service
	courses  *course.Service
	cfg      integration.Config
}

func setup(t *testing.T, src rosterSource, settings integration.Settings) *testEnv {
	t.Helper()
	emailsvc.SentMessages = emailsvc.SentMessages[:0]

	db := inmemdb.NewDB()
	syncRepo := inmemdb.NewSyncRepository(db)
	ledger := sync.NewLedger(syncRepo)
	mappings := sync.NewMappingStore(syncRepo)
	processor := sync.NewProcessor(sync.NewReconciler(mappings))

	usrSvc := user.NewService(inmemdb.NewUserRepository(db))
	schoolSvc := school.NewService(inmemdb.NewSchoolRepository(db))
	courseSvc := course.NewService(inmemdb.NewCourseRepository(db))
	integrationRepo := inmemdb.NewIntegrationRepository(db)

	if settings.BaseURL == "" {
		settings.BaseURL = "https://roster.example.com"
	}
	cfg := integrationRepo.SeedConfig(integration.Config{
		Tenant:   "acme",
		Provider: integration.ProviderOneRoster,
		Status:   integration.StatusActive,
		Settings: settings,
	})

	conn := NewConnector(
		integration.NewService(integrationRepo),
		ledger, processor, schoolSvc, usrSvc, courseSvc,
		emailsvc.NewConsoleServiceMock(), nopLogger{},
	)
	conn.newClient = func(baseURL, clientID, clientSecret string) (rosterSource, error) { return src, nil }

	return &testEnv{
		db:       db,
		conn:     conn,
		ledger:   ledger,
		mappings: mappings,
		users:    usrSvc,
		schools:  schoolSvc,
		courses:  courseSvc,
		cfg:      cfg,
	}
}

func fullRoster() *stubSource {
	return &stubSource{
		orgs: []onerostersvc.Org{
			{SourcedID: "org1", Status: onerostersvc.StatusActive, Name: "Springfield High", Type: "school"},
			{SourcedID: "org2", Status: onerostersvc.StatusToBeDeleted, Name: "Closed Annex", Type: "school"},
		},
		sessions: []onerostersvc.AcademicSession{
			{SourcedID: "sy1", Status: onerostersvc.StatusActive, Title: "2025-2026", Type: onerostersvc.SessionTypeSchoolYear, StartDate: "2025-08-01", EndDate: "2026-06-30"},
			{SourcedID: "t1", Status: onerostersvc.StatusActive, Title: "Fall 2025", Type: onerostersvc.SessionTypeTerm, StartDate: "2025-08-01", EndDate: "2025-12-20", Parent: onerostersvc.GUIDRef{SourcedID: "sy1"}},
		},
		users: []onerostersvc.User{
			{SourcedID: "u1", Status: onerostersvc.StatusActive, GivenName: "Lisa", FamilyName: "Simpson", Email: "lisa@acme.edu", Role: "student"},
			{SourcedID: "u2", Status: onerostersvc.StatusActive, GivenName: "Edna", FamilyName: "Krabappel", Email: "edna@acme.edu", Role: "teacher"},
			{SourcedID: "u3", Status: onerostersvc.StatusActive, GivenName: "No", FamilyName: "Email", Role: "student"},
			{SourcedID: "u4", Status: onerostersvc.StatusActive, GivenName: "Hall", FamilyName: "Monitor", Email: "hall@acme.edu", Role: "proctor"},
		},
		classes: []onerostersvc.Class{
			{SourcedID: "c1", Status: onerostersvc.StatusActive, Title: "Algebra I", ClassCode: "ALG-1", Terms: []onerostersvc.GUIDRef{{SourcedID: "t1"}}},
		},
		enrollments: []onerostersvc.Enrollment{
			{SourcedID: "e1", Status: onerostersvc.StatusActive, Role: "student", User: onerostersvc.GUIDRef{SourcedID: "u1"}, Class: onerostersvc.GUIDRef{SourcedID: "c1"}},
			{SourcedID: "e2", Status: onerostersvc.StatusActive, Role: "teacher", User: onerostersvc.GUIDRef{SourcedID: "u2"}, Class: onerostersvc.GUIDRef{SourcedID: "c1"}},
			{SourcedID: "e3", Status: onerostersvc.StatusActive, Role: "administrator", User: onerostersvc.GUIDRef{SourcedID: "u2"}, Class: onerostersvc.GUIDRef{SourcedID: "c1"}},
			{SourcedID: "e4", Status: onerostersvc.StatusActive, Role: "student", User: onerostersvc.GUIDRef{SourcedID: "ghost"}, Class: onerostersvc.GUIDRef{SourcedID: "c1"}},
		},
	}
}

func TestConnector_SyncRoster(t *testing.T) {
	env := setup(t, fullRoster(), integration.Settings{})
	ctx := context.Background()

	run, err := env.conn.SyncRoster(ctx, env.cfg.ID, "admin1")
	require.NoError(t, err)

	assert.Equal(t, sync.StatusCompleted, run.Status)
	assert.Equal(t, SyncTypeRoster, run.SyncType)
	assert.Equal(t, sync.DirectionPull, run.Direction)
	assert.Equal(t, "admin1", run.TriggeredBy)

	// org2 and nothing else is skipped outright; u3, u4 and e3 are excluded
	// (processed only); e4 fails on its dangling user ref
	assert.Equal(t, 12, run.RecordsProcessed)
	assert.Equal(t, 8, run.RecordsSucceeded)
	assert.Equal(t, 1, run.RecordsFailed)

	tctx := core.WithTenant(ctx, "acme")

	schools, err := env.schools.QuerySchools(tctx)
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "Springfield High", schools[0].Name)

	// the term hangs off the mapped parent school year
	yr, err := env.schools.FirstAcademicYear(tctx)
	require.NoError(t, err)
	termM, err := env.mappings.FindExternal(ctx, env.cfg.ID, sync.ExternalOneRosterSession, "t1")
	require.NoError(t, err)
	term, err := env.schools.GetTermByID(tctx, termM.LocalID)
	require.NoError(t, err)
	assert.Equal(t, yr.ID, term.AcademicYearID)

	// imported users carry mapped roles, the rest never landed
	lisa, err := env.users.GetByEmail(tctx, "lisa@acme.edu")
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleStudent}, lisa.Roles)
	assert.Equal(t, "Lisa Simpson", lisa.Name)
	_, err = env.users.GetByEmail(tctx, "hall@acme.edu")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	// the class became a course with a default section holding both enrollments
	classM, err := env.mappings.FindExternal(ctx, env.cfg.ID, sync.ExternalOneRosterClass, "c1")
	require.NoError(t, err)
	sec, err := env.courses.GetDefaultSection(tctx, classM.LocalID)
	require.NoError(t, err)
	enrs, err := env.courses.QueryEnrollmentsBySectionID(tctx, sec.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 2)

	// the dangling enrollment left an error log behind
	logs, err := env.ledger.QueryLogs(ctx, run.ID)
	require.NoError(t, err)
	var errCount, warnCount int
	for _, l := range logs {
		switch l.Level {
		case sync.LevelError:
			errCount++
			assert.Equal(t, "e4", l.ExternalID)
		case sync.LevelWarn:
			warnCount++
		}
	}
	assert.Equal(t, 1, errCount)
	assert.Equal(t, 3, warnCount) // u3, u4, e3
}

func TestConnector_SyncRoster_idempotent(t *testing.T) {
	env := setup(t, fullRoster(), integration.Settings{})
	ctx := context.Background()

	first, err := env.conn.SyncRoster(ctx, env.cfg.ID, "")
	require.NoError(t, err)
	before, err := env.mappings.Query(ctx, env.cfg.ID)
	require.NoError(t, err)

	second, err := env.conn.SyncRoster(ctx, env.cfg.ID, "")
	require.NoError(t, err)
	after, err := env.mappings.Query(ctx, env.cfg.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.RecordsProcessed, second.RecordsProcessed)
	assert.Equal(t, first.RecordsSucceeded, second.RecordsSucceeded)
	assert.Len(t, after, len(before))

	// no duplicate entities either
	tctx := core.WithTenant(ctx, "acme")
	schools, err := env.schools.QuerySchools(tctx)
	require.NoError(t, err)
	assert.Len(t, schools, 1)
	users, err := env.users.Filter(tctx, user.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestConnector_SyncRoster_adoptsExistingUserByEmail(t *testing.T) {
	env := setup(t, fullRoster(), integration.Settings{})
	ctx := context.Background()
	tctx := core.WithTenant(ctx, "acme")

	existing, err := env.users.CreateExternal(tctx, user.ExternalUser{
		Name:  "Lisa S",
		Email: "lisa@acme.edu",
		Roles: []string{user.RoleStudent},
	})
	require.NoError(t, err)

	_, err = env.conn.SyncRoster(ctx, env.cfg.ID, "")
	require.NoError(t, err)

	m, err := env.mappings.FindExternal(ctx, env.cfg.ID, sync.ExternalOneRosterUser, "u1")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, m.LocalID)
}

func TestConnector_SyncRoster_domainAllowlist(t *testing.T) {
	env := setup(t, fullRoster(), integration.Settings{DomainAllowlist: []string{"other.edu"}})
	ctx := context.Background()

	run, err := env.conn.SyncRoster(ctx, env.cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, sync.StatusCompleted, run.Status)

	// every user was warned away, so the enrollments fail on missing mappings
	users, err := env.users.Filter(core.WithTenant(ctx, "acme"), user.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestConnector_SyncRoster_fetchFailureFailsRun(t *testing.T) {
	src := fullRoster()
	src.usersErr = errors.New("connection reset by peer")
	env := setup(t, src, integration.Settings{})
	ctx := context.Background()

	run, err := env.conn.SyncRoster(ctx, env.cfg.ID, "")
	require.Error(t, err)
	assert.Equal(t, sync.StatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "connection reset by peer")

	// earlier passes still ran and were tallied
	assert.Equal(t, 3, run.RecordsProcessed)

	// the platform admin got a failure email
	require.Len(t, emailsvc.SentMessages, 1)
	assert.Contains(t, emailsvc.SentMessages[0].Subject, "failed")
}

func TestConnector_SyncRoster_configGuards(t *testing.T) {
	env := setup(t, fullRoster(), integration.Settings{})
	ctx := context.Background()

	t.Run("unknown config", func(t *testing.T) {
		_, err := env.conn.SyncRoster(ctx, "nope", "")
		assert.Equal(t, integration.ErrNotFound, errors.Cause(err))
	})

	t.Run("inactive config", func(t *testing.T) {
		db := inmemdb.NewDB()
		repo := inmemdb.NewIntegrationRepository(db)
		cfg := repo.SeedConfig(integration.Config{
			Tenant:   "acme",
			Provider: integration.ProviderOneRoster,
			Status:   integration.StatusInactive,
			Settings: integration.Settings{BaseURL: "https://roster.example.com"},
		})
		env2 := setup(t, fullRoster(), integration.Settings{})
		env2.conn.integrations = integration.NewService(repo)
		_, err := env2.conn.SyncRoster(ctx, cfg.ID, "")
		assert.Equal(t, integration.ErrInactive, errors.Cause(err))
	})

	t.Run("wrong provider", func(t *testing.T) {
		db := inmemdb.NewDB()
		repo := inmemdb.NewIntegrationRepository(db)
		cfg := repo.SeedConfig(integration.Config{
			Tenant:   "acme",
			Provider: integration.ProviderClassroom,
			Status:   integration.StatusActive,
			Settings: integration.Settings{APIBaseURL: "https://classroom.example.com"},
		})
		env2 := setup(t, fullRoster(), integration.Settings{})
		env2.conn.integrations = integration.NewService(repo)
		_, err := env2.conn.SyncRoster(ctx, cfg.ID, "")
		assert.Error(t, err)
	})
}

func TestConnector_SyncRoster_synthesizesYearForOrphanTerm(t *testing.T) {
	src := &stubSource{
		sessions: []onerostersvc.AcademicSession{
			{SourcedID: "t9", Status: onerostersvc.StatusActive, Title: "Spring 2026", Type: onerostersvc.SessionTypeTerm, StartDate: "2026-01-05", EndDate: "2026-06-15"},
		},
	}
	env := setup(t, src, integration.Settings{})
	ctx := context.Background()

	run, err := env.conn.SyncRoster(ctx, env.cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecordsSucceeded)

	yr, err := env.schools.FirstAcademicYear(core.WithTenant(ctx, "acme"))
	require.NoError(t, err)
	assert.Equal(t, "2026-2027", yr.Name)
}

func TestConnector_SyncBundle(t *testing.T) {
	env := setup(t, nil, integration.Settings{BundleURL: "https://roster.example.com/bundle.zip"})
	ctx := context.Background()

	env.conn.fetchBundle = func(ctx context.Context, bundleURL string) (*onerostersvc.Bundle, error) {
		return &onerostersvc.Bundle{
			Orgs: []onerostersvc.Org{
				{SourcedID: "org1", Status: onerostersvc.StatusActive, Name: "Springfield High", Type: "school"},
				{SourcedID: "org2", Status: onerostersvc.StatusToBeDeleted, Name: "Closed Annex", Type: "school"},
			},
			Warnings: []string{"users.csv: missing column email"},
		}, nil
	}

	run, err := env.conn.SyncBundle(ctx, env.cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, sync.StatusCompleted, run.Status)
	assert.Equal(t, SyncTypeBundle, run.SyncType)
	assert.Equal(t, 1, run.RecordsProcessed)
	assert.Equal(t, 1, run.RecordsSucceeded)

	mappings, err := env.mappings.Query(ctx, env.cfg.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "org1", mappings[0].ExternalID)

	// parser warnings surface on the run log
	logs, err := env.ledger.QueryLogs(ctx, run.ID)
	require.NoError(t, err)
	var found bool
	for _, l := range logs {
		if l.Level == sync.LevelWarn && l.Message == "users.csv: missing column email" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConnector_SyncBundle_downloadFailureFailsRun(t *testing.T) {
	env := setup(t, nil, integration.Settings{BundleURL: "https://roster.example.com/bundle.zip"})
	ctx := context.Background()

	env.conn.fetchBundle = func(ctx context.Context, bundleURL string) (*onerostersvc.Bundle, error) {
		return nil, errors.New("corrupt zip archive")
	}

	run, err := env.conn.SyncBundle(ctx, env.cfg.ID, "")
	require.Error(t, err)
	assert.Equal(t, sync.StatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "corrupt zip")
}

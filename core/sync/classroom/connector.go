// Package classroom syncs against classroom-style providers: a pull of
// courses and students, a push of local assignments as coursework, and a push
// of grades onto provider submissions.
package classroom

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
	classroomsvc "github.com/trezcool/shule/services/classroom"
)

// Sync types recorded on the run ledger.
const (
	SyncTypeRoster     = "classroom_roster"
	SyncTypeCoursework = "classroom_coursework"
	SyncTypeGrades     = "classroom_grades"
)

// courseAPI is the slice of the provider client the connector needs; swapped
// for a stub in tests.
type courseAPI interface {
	Courses(ctx context.Context) ([]classroomsvc.Course, error)
	Students(ctx context.Context, courseID string) ([]classroomsvc.Student, error)
	CreateCourseWork(ctx context.Context, courseID string, cw classroomsvc.CourseWork) (classroomsvc.CourseWork, error)
	UpdateCourseWork(ctx context.Context, courseID, courseWorkID string, cw classroomsvc.CourseWork) (classroomsvc.CourseWork, error)
	StudentSubmissions(ctx context.Context, courseID, courseWorkID string) ([]classroomsvc.StudentSubmission, error)
	PatchSubmissionGrade(ctx context.Context, courseID, courseWorkID, submissionID string, grade float64) error
}

// Connector drives classroom-provider syncs for one platform instance.
type Connector struct {
	integrations *integration.Service
	ledger       *sync.Ledger
	processor    *sync.Processor
	users        *user.Service
	courses      *course.Service
	assignments  *assignment.Service
	mailSvc      core.EmailService
	logger       core.Logger

	newClient func(baseURL, token string) (courseAPI, error)
}

func NewConnector(
	integrations *integration.Service,
	ledger *sync.Ledger,
	processor *sync.Processor,
	users *user.Service,
	courses *course.Service,
	assignments *assignment.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Connector {
	return &Connector{
		integrations: integrations,
		ledger:       ledger,
		processor:    processor,
		users:        users,
		courses:      courses,
		assignments:  assignments,
		mailSvc:      mailSvc,
		logger:       logger,
		newClient: func(baseURL, token string) (courseAPI, error) {
			return classroomsvc.NewClient(baseURL, token)
		},
	}
}

func (c *Connector) mappings() *sync.MappingStore { return c.processor.Reconciler().MappingStore() }

// begin loads and checks the config, stamps the tenant on the context and
// opens a running Run.
func (c *Connector) begin(ctx context.Context, configID, syncType string, dir sync.Direction, triggeredBy string) (context.Context, integration.Config, *sync.RunHandle, error) {
	cfg, err := c.integrations.GetActive(ctx, configID)
	if err != nil {
		return ctx, integration.Config{}, nil, err
	}
	if cfg.Provider != integration.ProviderClassroom {
		return ctx, integration.Config{}, nil, errors.Errorf("config %s is not a classroom integration", configID)
	}
	ctx = core.WithTenant(ctx, cfg.Tenant)

	h, err := c.ledger.Create(ctx, cfg.Tenant, cfg.ID, syncType, dir, triggeredBy)
	if err != nil {
		return ctx, integration.Config{}, nil, err
	}
	if err := h.Start(ctx); err != nil {
		return ctx, integration.Config{}, nil, err
	}
	return ctx, cfg, h, nil
}

func (c *Connector) client(cfg integration.Config) (courseAPI, error) {
	if cfg.Settings.APIBaseURL == "" {
		return nil, errors.New("integration config has no API base URL")
	}
	return c.newClient(cfg.Settings.APIBaseURL, cfg.Settings.AccessToken)
}

func (c *Connector) complete(ctx context.Context, h *sync.RunHandle) (sync.Run, error) {
	if err := h.Complete(ctx); err != nil {
		return h.Run(), err
	}
	run := h.Run()
	c.logger.Info(fmt.Sprintf(
		"%s run %s completed: %d processed, %d succeeded, %d failed",
		run.SyncType, run.ID, run.RecordsProcessed, run.RecordsSucceeded, run.RecordsFailed,
	))
	return run, nil
}

// fail finalizes a run as failed and notifies the platform admin.
func (c *Connector) fail(ctx context.Context, h *sync.RunHandle, cause error) (sync.Run, error) {
	if err := h.Fail(ctx, cause.Error()); err != nil {
		c.logger.Error(fmt.Sprintf("finalizing failed run: %v", err), err)
	}
	run := h.Run()
	c.logger.Error(fmt.Sprintf("%s run %s failed: %v", run.SyncType, run.ID, cause), cause)
	c.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: core.Conf.AdminEmail}},
		Subject: fmt.Sprintf("Sync run %s failed", run.ID),
		BodyStr: fmt.Sprintf(
			"Sync run %s (%s, tenant %s) failed.\n\nError: %v\n\nRecords processed: %d\nRecords succeeded: %d\nRecords failed: %d\n",
			run.ID, run.SyncType, run.Tenant, cause,
			run.RecordsProcessed, run.RecordsSucceeded, run.RecordsFailed,
		),
	})
	return run, cause
}

// SyncRoster pulls courses and their students from the provider.
func (c *Connector) SyncRoster(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	ctx, cfg, h, err := c.begin(ctx, configID, SyncTypeRoster, sync.DirectionPull, triggeredBy)
	if err != nil {
		return sync.Run{}, err
	}

	api, err := c.client(cfg)
	if err != nil {
		return c.fail(ctx, h, err)
	}
	if err := c.processor.Run(ctx, h, cfg.ID, c.passes(cfg, api)); err != nil {
		return c.fail(ctx, h, err)
	}
	return c.complete(ctx, h)
}

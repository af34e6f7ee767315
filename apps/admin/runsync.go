package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assignment"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/sync"
	classroomsync "github.com/trezcool/shule/core/sync/classroom"
	onerostersync "github.com/trezcool/shule/core/sync/oneroster"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

// runSync executes one connector invocation to completion and prints the
// resulting run tallies.
func (cli *commandLine) runSync(configID, syncType string) error {
	std := stdlog.New(os.Stdout, "SYNC : ", stdlog.LstdFlags|stdlog.Lshortfile)
	appLogger := logsvc.NewRollbarLogger(std, &core.Conf)

	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(appLogger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(cli.sdb))
	schoolSvc := school.NewService(sqlxrepos.NewSchoolRepository(cli.sdb))
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(cli.sdb))
	assignmentSvc := assignment.NewService(sqlxrepos.NewAssignmentRepository(cli.sdb))
	integrationSvc := integration.NewService(sqlxrepos.NewIntegrationRepository(cli.sdb))

	syncRepo := sqlxrepos.NewSyncRepository(cli.sdb)
	ledger := sync.NewLedger(syncRepo)
	processor := sync.NewProcessor(sync.NewReconciler(sync.NewMappingStore(syncRepo)))

	ctx := context.Background()
	var run sync.Run
	var err error
	switch syncType {
	case onerostersync.SyncTypeRoster:
		conn := onerostersync.NewConnector(integrationSvc, ledger, processor, schoolSvc, usrSvc, courseSvc, mailSvc, appLogger)
		run, err = conn.SyncRoster(ctx, configID, "")
	case onerostersync.SyncTypeBundle:
		conn := onerostersync.NewConnector(integrationSvc, ledger, processor, schoolSvc, usrSvc, courseSvc, mailSvc, appLogger)
		run, err = conn.SyncBundle(ctx, configID, "")
	case classroomsync.SyncTypeRoster:
		conn := classroomsync.NewConnector(integrationSvc, ledger, processor, usrSvc, courseSvc, assignmentSvc, mailSvc, appLogger)
		run, err = conn.SyncRoster(ctx, configID, "")
	case classroomsync.SyncTypeCoursework:
		conn := classroomsync.NewConnector(integrationSvc, ledger, processor, usrSvc, courseSvc, assignmentSvc, mailSvc, appLogger)
		run, err = conn.PushCoursework(ctx, configID, "")
	case classroomsync.SyncTypeGrades:
		conn := classroomsync.NewConnector(integrationSvc, ledger, processor, usrSvc, courseSvc, assignmentSvc, mailSvc, appLogger)
		run, err = conn.PushGrades(ctx, configID, "")
	default:
		return errors.Errorf("unknown sync type %q", syncType)
	}

	if run.ID != "" {
		fmt.Printf(
			"run %s: status=%s processed=%d succeeded=%d failed=%d\n",
			run.ID, run.Status, run.RecordsProcessed, run.RecordsSucceeded, run.RecordsFailed,
		)
	}
	return err
}

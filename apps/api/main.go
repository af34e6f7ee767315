package main

import (
	"fmt"
	stdlog "log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/shule/apps/api/echo"
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
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

func main() {
	std := stdlog.New(os.Stdout, fmt.Sprintf("%s API : ", core.Conf.AppName), stdlog.LstdFlags|stdlog.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, &core.Conf)

	// set up DB
	sqlDB, err := database.Open(&core.Conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, core.Conf.Database.Engine)

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	schoolSvc := school.NewService(sqlxrepos.NewSchoolRepository(db))
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db))
	assignmentSvc := assignment.NewService(sqlxrepos.NewAssignmentRepository(db))
	integrationSvc := integration.NewService(sqlxrepos.NewIntegrationRepository(db))

	// set up the sync engine
	syncRepo := sqlxrepos.NewSyncRepository(db)
	ledger := sync.NewLedger(syncRepo)
	mappings := sync.NewMappingStore(syncRepo)
	processor := sync.NewProcessor(sync.NewReconciler(mappings))

	onerosterConn := onerostersync.NewConnector(integrationSvc, ledger, processor, schoolSvc, usrSvc, courseSvc, mailSvc, logger)
	classroomConn := classroomsync.NewConnector(integrationSvc, ledger, processor, usrSvc, courseSvc, assignmentSvc, mailSvc, logger)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:        core.Conf.Server.Address(),
			UserSvc:        usrSvc,
			IntegrationSvc: integrationSvc,
			Ledger:         ledger,
			Mappings:       mappings,
			OneRoster:      onerosterConn,
			Classroom:      classroomConn,
			Logger:         logger,
		},
	)
	app.Start()
}

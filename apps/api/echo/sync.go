package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/sync"
	classroomsync "github.com/trezcool/shule/core/sync/classroom"
	onerostersync "github.com/trezcool/shule/core/sync/oneroster"
)

type (
	// rosterPuller and classroomSyncer are the connector slices the API needs;
	// swapped for stubs in tests.
	rosterPuller interface {
		SyncRoster(ctx context.Context, configID, triggeredBy string) (sync.Run, error)
		SyncBundle(ctx context.Context, configID, triggeredBy string) (sync.Run, error)
	}

	classroomSyncer interface {
		SyncRoster(ctx context.Context, configID, triggeredBy string) (sync.Run, error)
		PushCoursework(ctx context.Context, configID, triggeredBy string) (sync.Run, error)
		PushGrades(ctx context.Context, configID, triggeredBy string) (sync.Run, error)
	}

	syncApi struct {
		integrationSvc *integration.Service
		ledger         *sync.Ledger
		mappings       *sync.MappingStore
		oneroster      rosterPuller
		classroom      classroomSyncer
	}
)

func registerSyncAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	integrationSvc *integration.Service,
	ledger *sync.Ledger,
	mappings *sync.MappingStore,
	oneroster rosterPuller,
	classroom classroomSyncer,
) {
	api := syncApi{
		integrationSvc: integrationSvc,
		ledger:         ledger,
		mappings:       mappings,
		oneroster:      oneroster,
		classroom:      classroom,
	}

	ig := g.Group("/integrations", jwt, tenantMiddleware(), adminMiddleware())
	ig.GET("", api.queryConfigs)
	ig.GET("/:id", api.retrieveConfig)
	ig.GET("/:id/mappings", api.queryMappings)
	ig.POST("/:id/sync/:type", api.triggerSync)

	sg := g.Group("/sync", jwt, tenantMiddleware(), adminMiddleware())
	sg.GET("/runs", api.queryRuns)
	sg.GET("/runs/:id", api.retrieveRun)
	sg.GET("/runs/:id/logs", api.queryRunLogs)
}

// Handlers

func (api *syncApi) queryConfigs(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	tenant, err := core.TenantFromContext(reqCtx)
	if err != nil {
		return errors.Wrap(err, "getting tenant")
	}

	configs, err := api.integrationSvc.Query(reqCtx, tenant)
	if err != nil {
		return errors.Wrap(err, "querying integration configs")
	}
	if configs == nil {
		configs = []integration.Config{}
	}
	return ctx.JSON(http.StatusOK, configs)
}

func (api *syncApi) retrieveConfig(ctx echo.Context) error {
	cfg, err := api.getTenantConfig(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cfg)
}

func (api *syncApi) queryMappings(ctx echo.Context) error {
	cfg, err := api.getTenantConfig(ctx)
	if err != nil {
		return err
	}

	mappings, err := api.mappings.Query(ctx.Request().Context(), cfg.ID)
	if err != nil {
		return errors.Wrap(err, "querying sync mappings")
	}
	if mappings == nil {
		mappings = []sync.Mapping{}
	}
	return ctx.JSON(http.StatusOK, mappings)
}

// triggerSync runs a connector synchronously and returns the terminal Run.
// A run-level failure still yields the Run; the client reads its status.
func (api *syncApi) triggerSync(ctx echo.Context) error {
	cfg, err := api.getTenantConfig(ctx)
	if err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	var run sync.Run
	switch syncType := ctx.Param("type"); syncType {
	case onerostersync.SyncTypeRoster:
		run, err = api.oneroster.SyncRoster(reqCtx, cfg.ID, claims.Subject)
	case onerostersync.SyncTypeBundle:
		run, err = api.oneroster.SyncBundle(reqCtx, cfg.ID, claims.Subject)
	case classroomsync.SyncTypeRoster:
		run, err = api.classroom.SyncRoster(reqCtx, cfg.ID, claims.Subject)
	case classroomsync.SyncTypeCoursework:
		run, err = api.classroom.PushCoursework(reqCtx, cfg.ID, claims.Subject)
	case classroomsync.SyncTypeGrades:
		run, err = api.classroom.PushGrades(reqCtx, cfg.ID, claims.Subject)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown sync type")
	}
	if err != nil && run.ID == "" {
		return errors.Wrapf(err, "triggering %s sync", ctx.Param("type"))
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *syncApi) queryRuns(ctx echo.Context) error {
	filter := new(sync.RunFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []sync.Run{})
	}

	reqCtx := ctx.Request().Context()
	tenant, err := core.TenantFromContext(reqCtx)
	if err != nil {
		return errors.Wrap(err, "getting tenant")
	}

	runs, err := api.ledger.QueryRuns(reqCtx, tenant, *filter)
	if err != nil {
		return errors.Wrap(err, "querying sync runs")
	}
	if runs == nil {
		runs = []sync.Run{}
	}
	return ctx.JSON(http.StatusOK, runs)
}

func (api *syncApi) retrieveRun(ctx echo.Context) error {
	run, err := api.getTenantRun(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *syncApi) queryRunLogs(ctx echo.Context) error {
	run, err := api.getTenantRun(ctx)
	if err != nil {
		return err
	}

	logs, err := api.ledger.QueryLogs(ctx.Request().Context(), run.ID)
	if err != nil {
		return errors.Wrap(err, "querying sync logs")
	}
	if logs == nil {
		logs = []sync.Log{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

// getTenantConfig loads the config in the URL and hides other tenants' configs
// behind a 404.
func (api *syncApi) getTenantConfig(ctx echo.Context) (integration.Config, error) {
	reqCtx := ctx.Request().Context()
	tenant, err := core.TenantFromContext(reqCtx)
	if err != nil {
		return integration.Config{}, errors.Wrap(err, "getting tenant")
	}

	cfg, err := api.integrationSvc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == integration.ErrNotFound {
			return integration.Config{}, errHttpNotFound
		}
		return integration.Config{}, errors.Wrap(err, "finding integration config by ID")
	}
	if cfg.Tenant != tenant {
		return integration.Config{}, errHttpNotFound
	}
	return cfg, nil
}

func (api *syncApi) getTenantRun(ctx echo.Context) (sync.Run, error) {
	reqCtx := ctx.Request().Context()
	tenant, err := core.TenantFromContext(reqCtx)
	if err != nil {
		return sync.Run{}, errors.Wrap(err, "getting tenant")
	}

	run, err := api.ledger.GetRunByID(reqCtx, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == sync.ErrRunNotFound {
			return sync.Run{}, errHttpNotFound
		}
		return sync.Run{}, errors.Wrap(err, "finding sync run by ID")
	}
	if run.Tenant != tenant {
		return sync.Run{}, errHttpNotFound
	}
	return run, nil
}

// Package oneroster pulls rosters from OneRoster v1.1 providers, either over
// the REST API or from a CSV zip bundle, and reconciles them into the local
// store.
package oneroster

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/integration"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/core/user"
	onerostersvc "github.com/trezcool/shule/services/oneroster"
)

// Sync types recorded on the run ledger.
const (
	SyncTypeRoster = "oneroster_roster"
	SyncTypeBundle = "oneroster_bundle"
)

// Connector drives OneRoster pull syncs for one platform instance. Safe for
// concurrent use; each invocation owns its Run exclusively.
type Connector struct {
	integrations *integration.Service
	ledger       *sync.Ledger
	processor    *sync.Processor
	schools      *school.Service
	users        *user.Service
	courses      *course.Service
	mailSvc      core.EmailService
	logger       core.Logger

	// newClient is swapped in tests to avoid the network.
	newClient func(baseURL, clientID, clientSecret string) (rosterSource, error)
	// fetchBundle is swapped in tests to serve a fixture bundle.
	fetchBundle func(ctx context.Context, bundleURL string) (*onerostersvc.Bundle, error)
}

func NewConnector(
	integrations *integration.Service,
	ledger *sync.Ledger,
	processor *sync.Processor,
	schools *school.Service,
	users *user.Service,
	courses *course.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Connector {
	return &Connector{
		integrations: integrations,
		ledger:       ledger,
		processor:    processor,
		schools:      schools,
		users:        users,
		courses:      courses,
		mailSvc:      mailSvc,
		logger:       logger,
		newClient: func(baseURL, clientID, clientSecret string) (rosterSource, error) {
			return onerostersvc.NewClient(baseURL, clientID, clientSecret)
		},
		fetchBundle: onerostersvc.DownloadBundle,
	}
}

func (c *Connector) mappings() *sync.MappingStore { return c.processor.Reconciler().MappingStore() }

// SyncRoster pulls the full roster over the REST API. The returned Run is
// terminal; a run-level error is reported both on the Run and as the error
// return.
func (c *Connector) SyncRoster(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	return c.run(ctx, configID, SyncTypeRoster, triggeredBy, func(ctx context.Context, cfg integration.Config, h *sync.RunHandle) (rosterSource, error) {
		if cfg.Settings.BaseURL == "" {
			return nil, errors.New("integration config has no base URL")
		}
		return c.newClient(cfg.Settings.BaseURL, cfg.Settings.ClientID, cfg.Settings.ClientSecret)
	})
}

// SyncBundle pulls the full roster from the configured CSV zip bundle URL.
func (c *Connector) SyncBundle(ctx context.Context, configID, triggeredBy string) (sync.Run, error) {
	return c.run(ctx, configID, SyncTypeBundle, triggeredBy, func(ctx context.Context, cfg integration.Config, h *sync.RunHandle) (rosterSource, error) {
		if cfg.Settings.BundleURL == "" {
			return nil, errors.New("integration config has no bundle URL")
		}
		b, err := c.fetchBundle(ctx, cfg.Settings.BundleURL)
		if err != nil {
			return nil, err
		}
		for _, w := range b.Warnings {
			h.LogWarn(ctx, w)
		}
		return bundleSource{bundle: b}, nil
	})
}

func (c *Connector) run(
	ctx context.Context,
	configID, syncType, triggeredBy string,
	source func(ctx context.Context, cfg integration.Config, h *sync.RunHandle) (rosterSource, error),
) (sync.Run, error) {
	cfg, err := c.integrations.GetActive(ctx, configID)
	if err != nil {
		return sync.Run{}, err
	}
	if cfg.Provider != integration.ProviderOneRoster {
		return sync.Run{}, errors.Errorf("config %s is not a oneroster integration", configID)
	}
	ctx = core.WithTenant(ctx, cfg.Tenant)

	h, err := c.ledger.Create(ctx, cfg.Tenant, cfg.ID, syncType, sync.DirectionPull, triggeredBy)
	if err != nil {
		return sync.Run{}, err
	}
	if err := h.Start(ctx); err != nil {
		return h.Run(), err
	}

	src, err := source(ctx, cfg, h)
	if err != nil {
		return c.fail(ctx, h, err)
	}
	if err := c.processor.Run(ctx, h, cfg.ID, c.passes(cfg, src)); err != nil {
		return c.fail(ctx, h, err)
	}

	if err := h.Complete(ctx); err != nil {
		return h.Run(), err
	}
	run := h.Run()
	c.logger.Info(fmt.Sprintf(
		"%s run %s completed: %d processed, %d succeeded, %d failed",
		syncType, run.ID, run.RecordsProcessed, run.RecordsSucceeded, run.RecordsFailed,
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
	c.mailSvc.SendMessages(failureEmail(run, cause))
	return run, cause
}

func failureEmail(run sync.Run, cause error) *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Address: core.Conf.AdminEmail}},
		Subject: fmt.Sprintf("Sync run %s failed", run.ID),
		BodyStr: fmt.Sprintf(
			"Sync run %s (%s, tenant %s) failed.\n\nError: %v\n\nRecords processed: %d\nRecords succeeded: %d\nRecords failed: %d\n",
			run.ID, run.SyncType, run.Tenant, cause,
			run.RecordsProcessed, run.RecordsSucceeded, run.RecordsFailed,
		),
	}
}

package listings

import (
	"github.com/menusam/listing-moderation/modules/listings/infrastructure/persistence"
	"github.com/menusam/listing-moderation/modules/listings/presentation/controllers"
	"github.com/menusam/listing-moderation/modules/listings/services"
	logsvc "github.com/menusam/listing-moderation/modules/logging/services"
	notifsvc "github.com/menusam/listing-moderation/modules/notifications/services"
	"github.com/menusam/listing-moderation/pkg/application"
	"github.com/menusam/listing-moderation/pkg/configuration"
	"github.com/menusam/listing-moderation/pkg/middleware"
)

type ModuleOptions struct {
	Authorize  middleware.AuthorizeOptions
	Moderation configuration.ModerationOptions
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{options: opts}
}

// Module depends on the logging and notifications modules being registered first.
type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	establishments := persistence.NewEstablishmentRepository()
	drafts := persistence.NewDraftRepository()
	changelogs := persistence.NewChangeLogRepository()
	queue := persistence.NewModerationRepository()

	opts := services.Options{
		PageSize: m.options.Moderation.FinalizePageSize,
		Audit:    app.Service(logsvc.AuditService{}).(*logsvc.AuditService),
		Notifier: app.Service(notifsvc.NotificationService{}).(*notifsvc.NotificationService),
	}

	applier := services.NewChangeApplier(establishments, changelogs, opts.Now)
	finalizer := services.NewFinalizer(drafts, establishments, queue, app.EventPublisher(), opts)
	decisions := services.NewDecisionService(drafts, establishments, changelogs, applier, finalizer, opts)
	legacy := services.NewLegacyDraftApplier(drafts, queue, changelogs, applier, finalizer, opts)
	app.RegisterServices(applier, finalizer, decisions, legacy)

	guard := middleware.Authorize(m.options.Authorize)
	app.RegisterControllers(
		controllers.NewProfileUpdatesController(decisions, guard),
		controllers.NewModerationController(legacy, controllers.Paging{
			Default: m.options.Moderation.PageSize,
			Max:     m.options.Moderation.MaxPageSize,
		}, guard),
	)
	return nil
}

func (m *Module) Name() string {
	return "listings"
}

package logging

import (
	"github.com/menusam/listing-moderation/modules/logging/infrastructure/persistence"
	"github.com/menusam/listing-moderation/modules/logging/presentation/controllers"
	"github.com/menusam/listing-moderation/modules/logging/services"
	"github.com/menusam/listing-moderation/pkg/application"
	"github.com/menusam/listing-moderation/pkg/middleware"
)

func NewModule(authorize middleware.AuthorizeOptions) application.Module {
	return &Module{authorize: authorize}
}

type Module struct {
	authorize middleware.AuthorizeOptions
}

func (m *Module) Register(app application.Application) error {
	auditService := services.NewAuditService(persistence.NewAuditLogRepository())
	app.RegisterServices(auditService)
	app.RegisterControllers(
		controllers.NewAuditLogsController(auditService, middleware.Authorize(m.authorize)),
	)
	return nil
}

func (m *Module) Name() string {
	return "logging"
}

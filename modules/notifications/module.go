package notifications

import (
	"github.com/menusam/listing-moderation/modules/notifications/infrastructure/persistence"
	"github.com/menusam/listing-moderation/modules/notifications/services"
	"github.com/menusam/listing-moderation/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	svc := services.NewNotificationService(persistence.NewNotificationRepository(), app.Logger())
	app.RegisterServices(svc)
	app.EventPublisher().Subscribe(svc.OnDraftFinalized)
	return nil
}

func (m *Module) Name() string {
	return "notifications"
}

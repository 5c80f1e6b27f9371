package modules

import (
	"github.com/menusam/listing-moderation/modules/listings"
	"github.com/menusam/listing-moderation/modules/logging"
	"github.com/menusam/listing-moderation/modules/notifications"
	"github.com/menusam/listing-moderation/pkg/application"
	"github.com/menusam/listing-moderation/pkg/configuration"
	"github.com/menusam/listing-moderation/pkg/middleware"
)

// BuiltIn returns the modules of the moderation service in registration order.
// listings consumes the services registered by logging and notifications.
func BuiltIn(conf *configuration.Configuration) []application.Module {
	authorize := middleware.AuthorizeOptions{
		Secret: []byte(conf.Auth.JWTSecret),
		Issuer: conf.Auth.JWTIssuer,
		Roles:  conf.Auth.Roles(),
	}
	return []application.Module{
		logging.NewModule(authorize),
		notifications.NewModule(),
		listings.NewModule(&listings.ModuleOptions{
			Authorize:  authorize,
			Moderation: conf.Moderation,
		}),
	}
}

func Load(app application.Application, modules ...application.Module) error {
	return application.LoadModules(app, modules...)
}

package application

import (
	"errors"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type fakeService struct{ name string }

type fakeController struct{ key string }

func (c *fakeController) Register(r *mux.Router) {}
func (c *fakeController) Key() string            { return c.key }

type fakeModule struct {
	name string
	err  error
}

func (m *fakeModule) Name() string { return m.name }
func (m *fakeModule) Register(app Application) error {
	if m.err != nil {
		return m.err
	}
	app.RegisterServices(&fakeService{name: m.name})
	return nil
}

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterServices(&fakeService{name: "a"})

	svc := app.Service(fakeService{}).(*fakeService)
	require.Equal(t, "a", svc.name)
	require.NotNil(t, app.EventPublisher())
	require.Panics(t, func() { app.Service(fakeController{}) })
}

func TestApplication_ControllersKeepRegistrationOrder(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterControllers(&fakeController{key: "b"}, &fakeController{key: "a"}, &fakeController{key: "b"})

	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	require.Equal(t, "b", controllers[0].Key())
	require.Equal(t, "a", controllers[1].Key())
}

func TestLoadModules(t *testing.T) {
	app := New(&ApplicationOptions{})
	require.NoError(t, LoadModules(app, &fakeModule{name: "ok"}))

	boom := errors.New("boom")
	err := LoadModules(app, &fakeModule{name: "broken", err: boom})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "broken")
}

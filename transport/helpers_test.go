package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-rendezvous/core"
)

type profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// newTestDispatcher registers a small user API shared by the adapter tests.
func newTestDispatcher(t *testing.T) *core.Dispatcher {
	t.Helper()
	d, err := core.NewDispatcher(core.Config{}, core.WithExecutor(core.InlineExecutor{}))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	handlers := []core.HandlerDescriptor{
		core.NewHandler("user.get").
			Params(core.PathParam[int]("userId")).
			Invoke(core.Handle1(func(_ context.Context, id int) (map[string]any, error) {
				return map[string]any{"id": id}, nil
			})).
			Build(),
		core.NewHandler("user.search").
			Params(core.AutoParam[int]("limit").Optional().WithDefault("10"), core.AutoParam[string]("q").Optional()).
			Invoke(core.Handle2(func(_ context.Context, limit int, q string) (map[string]any, error) {
				return map[string]any{"limit": limit, "q": q}, nil
			})).
			Build(),
		core.NewHandler("user.update").
			Params(core.Body[profile]("profile")).
			Invoke(core.Handle1(func(_ context.Context, p profile) (profile, error) {
				return p, nil
			})).
			Build(),
		core.NewHandler("user.fail").
			Invoke(core.Handle0(func(context.Context) (any, error) {
				return nil, errors.New("db down")
			})).
			Build(),
		core.NewHandler("user.crash").
			Invoke(core.Handle0(func(context.Context) (any, error) {
				panic("dsn=postgres://admin:hunter2@db")
			})).
			Build(),
		core.NewHandler("admin.reset").
			Protocols(core.SchemeHTTP).
			Invoke(core.Handle0(func(context.Context) (string, error) { return "reset", nil })).
			Build(),
	}
	for _, descriptor := range handlers {
		if err := d.RegisterHandler(descriptor); err != nil {
			t.Fatalf("register %s: %v", descriptor.Intent, err)
		}
	}
	return d
}

func mustGateway[I any, O any](t *testing.T, d *core.Dispatcher, adapter core.ProtocolAdapter[I, O]) *core.Gateway[I, O] {
	t.Helper()
	gateway, err := core.NewGateway(d, adapter)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gateway
}

package gocommand

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-rendezvous/core"
)

type okMessage struct{}

func (okMessage) Type() string { return "rendezvous.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "rendezvous.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "rendezvous.command.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "rendezvous.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("rendezvous.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

type lookupMessage struct {
	UserID int    `json:"user_id"`
	Locale string `json:"locale"`
}

func (lookupMessage) Type() string { return "rendezvous.query.lookup" }

func (m lookupMessage) Validate() error {
	if m.UserID <= 0 {
		return errors.New("user id is required")
	}
	return nil
}

type lookupResult struct {
	Greeting string
}

type renameMessage struct {
	Name string `json:"name"`
}

func (renameMessage) Type() string { return "rendezvous.command.rename" }

func newDispatcher(t *testing.T) *core.Dispatcher {
	t.Helper()
	d, err := core.NewDispatcher(core.Config{}, core.WithExecutor(core.InlineExecutor{}))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func TestQueryHandler_BindsBodyIntoMessage(t *testing.T) {
	d := newDispatcher(t)
	qry := command.QueryFunc[lookupMessage, lookupResult](func(_ context.Context, msg lookupMessage) (lookupResult, error) {
		return lookupResult{Greeting: msg.Locale + ":" + strings.Repeat("!", msg.UserID)}, nil
	})
	if err := d.RegisterHandler(QueryHandler("user.lookup", qry).Build()); err != nil {
		t.Fatalf("register: %v", err)
	}

	rc, err := d.Dispatch(context.Background(), core.Inbound{
		Scheme:  core.SchemeHTTP,
		Intent:  "user.lookup",
		Payload: core.Payload{Body: map[string]any{"user_id": "2", "locale": "en"}},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	result, ok := rc.Result().(lookupResult)
	if !ok || result.Greeting != "en:!!" {
		t.Fatalf("unexpected result: %#v (%v)", rc.Result(), rc.Outcome().Err)
	}

	rc, _ = d.Dispatch(context.Background(), core.Inbound{
		Scheme:  core.SchemeHTTP,
		Intent:  "user.lookup",
		Payload: core.Payload{Body: map[string]any{"locale": "en"}},
	})
	if core.KindOf(rc.Outcome().Err) != core.KindHandlerExecution {
		t.Fatalf("expected handler failure, got %v", rc.Outcome().Err)
	}
	if status := core.StatusFor(rc.Outcome().Err); status != http.StatusBadRequest {
		t.Fatalf("expected message validation to surface as 400, got %d", status)
	}
}

func TestCommandInvocables(t *testing.T) {
	d := newDispatcher(t)
	var renamed string
	cmd := command.CommandFunc[renameMessage](func(_ context.Context, msg renameMessage) error {
		renamed = msg.Name
		return nil
	})
	if err := d.RegisterHandler(CommandHandler("user.rename", cmd).Build()); err != nil {
		t.Fatalf("register: %v", err)
	}
	rc, err := d.Dispatch(context.Background(), core.Inbound{
		Scheme:  core.SchemeRPC,
		Intent:  "user.rename",
		Payload: core.Payload{Body: map[string]any{"name": "Ada"}},
	})
	if err != nil || !rc.Outcome().Succeeded() {
		t.Fatalf("dispatch: %v %v", err, rc.Outcome().Err)
	}
	if renamed != "Ada" || rc.Result() != nil {
		t.Fatalf("expected command side effect and nil result, got %q %v", renamed, rc.Result())
	}

	storing := command.CommandFunc[renameMessage](func(ctx context.Context, msg renameMessage) error {
		if collector := command.ResultFromContext[string](ctx); collector != nil {
			collector.Store("renamed to " + msg.Name)
		}
		return nil
	})
	invoke := FromCommandResult[renameMessage, string](storing)
	out, err := invoke(context.Background(), core.Arguments{{Name: MessageParam, Value: renameMessage{Name: "Grace"}, Present: true}})
	if err != nil || out != "renamed to Grace" {
		t.Fatalf("expected stored result, got %v %v", out, err)
	}
}

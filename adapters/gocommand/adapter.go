package gocommand

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	goerrors "github.com/goliatone/go-errors"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-rendezvous/core"
)

// MessageParam is the parameter name the handler helpers bind the whole
// request body to.
const MessageParam = "message"

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// FromQuery exposes a go-command querier as an invocable. The message is
// the first bound argument and must pass ValidateMessageContract.
func FromQuery[T any, R any](qry command.Querier[T, R]) core.Invocable {
	return func(ctx context.Context, args core.Arguments) (any, error) {
		if qry == nil {
			return nil, fmt.Errorf("gocommand: query is required")
		}
		msg, err := messageFrom[T](args)
		if err != nil {
			return nil, err
		}
		return qry.Query(ctx, msg)
	}
}

// FromCommand exposes a go-command commander as an invocable with no result.
func FromCommand[T any](cmd command.Commander[T]) core.Invocable {
	return func(ctx context.Context, args core.Arguments) (any, error) {
		if cmd == nil {
			return nil, fmt.Errorf("gocommand: command is required")
		}
		msg, err := messageFrom[T](args)
		if err != nil {
			return nil, err
		}
		return nil, cmd.Execute(ctx, msg)
	}
}

// FromCommandResult exposes a commander that stores an R in the go-command
// result collector and returns what it stored.
func FromCommandResult[T any, R any](cmd command.Commander[T]) core.Invocable {
	return func(ctx context.Context, args core.Arguments) (any, error) {
		if cmd == nil {
			return nil, fmt.Errorf("gocommand: command is required")
		}
		msg, err := messageFrom[T](args)
		if err != nil {
			return nil, err
		}
		collector := command.NewResult[R]()
		if err := cmd.Execute(command.ContextWithResult(ctx, collector), msg); err != nil {
			return nil, err
		}
		if out, ok := collector.Load(); ok {
			return out, nil
		}
		return nil, nil
	}
}

// QueryHandler starts a handler for intent whose body binds to T.
func QueryHandler[T any, R any](intent string, qry command.Querier[T, R]) *core.HandlerBuilder {
	return core.NewHandler(intent).
		Params(core.Body[T](MessageParam)).
		Invoke(FromQuery(qry))
}

// CommandHandler starts a handler for intent whose body binds to T.
func CommandHandler[T any](intent string, cmd command.Commander[T]) *core.HandlerBuilder {
	return core.NewHandler(intent).
		Params(core.Body[T](MessageParam)).
		Invoke(FromCommand(cmd))
}

func messageFrom[T any](args core.Arguments) (T, error) {
	var msg T
	if len(args) > 0 {
		value, err := core.ArgAt[T](args, 0)
		if err != nil {
			return msg, err
		}
		msg = value
	}
	if err := ValidateMessageContract(msg); err != nil {
		return msg, goerrors.Wrap(err, goerrors.CategoryValidation, "gocommand: invalid message").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.DispatchErrorValidation)
	}
	return msg, nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

package command

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-rendezvous/core"
)

// Dispatcher is the part of core.Dispatcher the commands drive.
type Dispatcher interface {
	Dispatch(ctx context.Context, in core.Inbound) (*core.RequestContext, error)
	RegisterHandler(descriptor core.HandlerDescriptor) error
	RegisterInterceptor(interceptor core.Interceptor) error
}

type InvokeCommand struct {
	dispatcher Dispatcher
}

func NewInvokeCommand(dispatcher Dispatcher) *InvokeCommand {
	return &InvokeCommand{dispatcher: dispatcher}
}

// Execute dispatches the message and returns the dispatch failure, if any,
// as the command error. The InvokeResult is stored on success.
func (c *InvokeCommand) Execute(ctx context.Context, msg InvokeMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: dispatcher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	rc, err := c.dispatcher.Dispatch(ctx, core.Inbound{
		Scheme: core.SchemeCommand,
		Intent: msg.Intent,
		Payload: core.Payload{
			Root:      msg.Params,
			Body:      msg.Body,
			Header:    msg.Headers,
			SessionID: msg.SessionID,
			TraceID:   msg.TraceID,
		},
		Raw: msg,
	})
	if err != nil {
		return err
	}
	outcome := rc.Outcome()
	if outcome.Failed() {
		return outcome.Err
	}
	route, _ := rc.Metadata(core.MetadataRoute)
	storeResult(ctx, InvokeResult{
		Intent:  rc.Intent(),
		Route:   fmt.Sprint(route),
		TraceID: rc.TraceID(),
		Result:  outcome.Result,
	})
	return nil
}

type RegisterIntentCommand struct {
	dispatcher Dispatcher
}

func NewRegisterIntentCommand(dispatcher Dispatcher) *RegisterIntentCommand {
	return &RegisterIntentCommand{dispatcher: dispatcher}
}

func (c *RegisterIntentCommand) Execute(_ context.Context, msg RegisterIntentMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: dispatcher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.dispatcher.RegisterHandler(msg.Descriptor)
}

type RegisterInterceptorCommand struct {
	dispatcher Dispatcher
}

func NewRegisterInterceptorCommand(dispatcher Dispatcher) *RegisterInterceptorCommand {
	return &RegisterInterceptorCommand{dispatcher: dispatcher}
}

func (c *RegisterInterceptorCommand) Execute(_ context.Context, msg RegisterInterceptorMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: dispatcher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.dispatcher.RegisterInterceptor(msg.Interceptor)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

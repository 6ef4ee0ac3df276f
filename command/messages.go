package command

import (
	"strings"

	"github.com/goliatone/go-rendezvous/core"
)

const (
	TypeInvoke              = "rendezvous.command.invoke"
	TypeRegisterIntent      = "rendezvous.command.intent.register"
	TypeRegisterInterceptor = "rendezvous.command.interceptor.register"
)

// InvokeMessage dispatches Intent in-process on the command scheme. Params
// become the flattened request values; Body, when set, is the structured
// body.
type InvokeMessage struct {
	Intent    string
	Params    map[string]any
	Body      any
	Headers   map[string]string
	SessionID string
	TraceID   string
}

func (InvokeMessage) Type() string { return TypeInvoke }

func (m InvokeMessage) Validate() error {
	if strings.TrimSpace(m.Intent) == "" {
		return commandValidationError("intent", "intent is required")
	}
	return nil
}

// InvokeResult is stored in the go-command result collector after a
// successful invocation.
type InvokeResult struct {
	Intent  string
	Route   string
	TraceID string
	Result  any
}

type RegisterIntentMessage struct {
	Descriptor core.HandlerDescriptor
}

func (RegisterIntentMessage) Type() string { return TypeRegisterIntent }

func (m RegisterIntentMessage) Validate() error {
	if strings.TrimSpace(m.Descriptor.Intent) == "" {
		return commandValidationError("intent", "intent is required")
	}
	if m.Descriptor.Invoke == nil {
		return commandValidationError("invoke", "handler invocable is required")
	}
	return nil
}

type RegisterInterceptorMessage struct {
	Interceptor core.Interceptor
}

func (RegisterInterceptorMessage) Type() string { return TypeRegisterInterceptor }

func (m RegisterInterceptorMessage) Validate() error {
	if strings.TrimSpace(m.Interceptor.Name) == "" {
		return commandValidationError("name", "interceptor name is required")
	}
	if m.Interceptor.Intercept == nil {
		return commandValidationError("intercept", "interceptor function is required")
	}
	return nil
}

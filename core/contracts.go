package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Executor runs dispatch work. Go may block until capacity is available and
// returns an error only when the task was not started.
type Executor interface {
	Go(ctx context.Context, task func()) error
}

// ProtocolAdapter translates between one wire protocol and the dispatcher.
// I is the inbound protocol message, O the protocol response.
type ProtocolAdapter[I any, O any] interface {
	Scheme() string
	ExtractIntent(raw I) (string, error)
	ExtractPayload(raw I) (Payload, error)
	BuildResponse(result any, raw I) O
	BuildErrorResponse(cause error, raw I) O
}

// FallbackResponder is implemented by adapters that can produce a response
// when building the regular response and the error response both failed.
type FallbackResponder[I any, O any] interface {
	Fallback(cause error, raw I) O
}

// IntentCatalog lists registered handlers for discovery.
type IntentCatalog interface {
	Intents() []string
	Descriptors() []HandlerDescriptor
	Resolve(intent string) (HandlerDescriptor, error)
}

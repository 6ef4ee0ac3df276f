// Package rendezvous is the entry point of the dispatch core: it re-exports
// the core types and wires command/query facades and handler packs on top.
package rendezvous

import "github.com/goliatone/go-rendezvous/core"

type Config = core.Config
type ExecutorConfig = core.ExecutorConfig
type InterceptorConfig = core.InterceptorConfig

type Option = core.Option

type Dispatcher = core.Dispatcher
type DispatcherDependencies = core.DispatcherDependencies

type HandlerDescriptor = core.HandlerDescriptor
type ParameterSpec = core.ParameterSpec
type Interceptor = core.Interceptor
type RequestContext = core.RequestContext
type Inbound = core.Inbound
type Payload = core.Payload
type Outcome = core.Outcome

type MetricsRecorder = core.MetricsRecorder
type JournalSink = core.JournalSink
type JournalReader = core.JournalReader

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithExecutor         = core.WithExecutor
	WithStructMapper     = core.WithStructMapper
	WithTraceIDGenerator = core.WithTraceIDGenerator
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewDispatcher(cfg Config, opts ...Option) (*Dispatcher, error) {
	return core.NewDispatcher(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Dispatcher, error) {
	return core.Setup(cfg, opts...)
}

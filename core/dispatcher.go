package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Dispatcher owns the handler registry and interceptor chain and runs the
// two-phase dispatch: Encounter resolves, binds and invokes; FallAway runs
// the outbound hooks once the outcome is known.
type Dispatcher struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	executor        Executor
	resolver        *ParameterResolver
	registry        *HandlerRegistry
	chain           *InterceptorChain
	traceIDs        func() string
	clock           func() time.Time
}

type DispatcherDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Executor        Executor
	Registry        *HandlerRegistry
	Interceptors    *InterceptorChain
}

// Inbound is a request already translated by a protocol adapter.
type Inbound struct {
	Scheme  string
	Intent  string
	Payload Payload
	Raw     any
}

func NewDispatcher(cfg Config, opts ...Option) (*Dispatcher, error) {
	builder := defaultDispatcherBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("rendezvous", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("rendezvous"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.structMapper == nil {
		builder.structMapper = MapstructureMapper{}
	}
	if builder.traceIDs == nil {
		builder.traceIDs = defaultDispatcherBuilder(cfg).traceIDs
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	executor := builder.executor
	if executor == nil {
		if workers := finalConfig.Executor.WorkerCount(); workers > 0 {
			executor = NewBoundedExecutor(workers)
		} else {
			executor = InlineExecutor{}
		}
	}

	resolver := NewParameterResolver(builder.structMapper)
	return &Dispatcher{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		executor:        executor,
		resolver:        resolver,
		registry:        NewHandlerRegistry(resolver),
		chain: NewInterceptorChain(
			finalConfig.Interceptors.FailurePolicy,
			logger,
			builder.metricsRecorder,
		),
		traceIDs: builder.traceIDs,
		clock:    builder.clock,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Dispatcher, error) {
	return NewDispatcher(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (d *Dispatcher) Config() Config {
	if d == nil {
		return Config{}
	}
	return d.config
}

func (d *Dispatcher) Dependencies() DispatcherDependencies {
	if d == nil {
		return DispatcherDependencies{}
	}
	return DispatcherDependencies{
		Logger:          d.logger,
		LoggerProvider:  d.loggerProvider,
		MetricsRecorder: d.metricsRecorder,
		ErrorMapper:     d.errorMapper,
		ConfigProvider:  d.configProvider,
		OptionsResolver: d.optionsResolver,
		Executor:        d.executor,
		Registry:        d.registry,
		Interceptors:    d.chain,
	}
}

func (d *Dispatcher) RegisterHandler(descriptor HandlerDescriptor) error {
	if d == nil {
		return registrationError("core: dispatcher is nil", nil)
	}
	if err := d.registry.Register(descriptor); err != nil {
		return err
	}
	d.logger.Debug("handler registered",
		"intent", strings.TrimSpace(descriptor.Intent),
		"protocols", normalizeSchemes(descriptor.Protocols),
		"parameters", len(descriptor.Parameters),
	)
	return nil
}

func (d *Dispatcher) RegisterInterceptor(interceptor Interceptor) error {
	if d == nil {
		return registrationError("core: dispatcher is nil", nil)
	}
	return d.chain.Register(interceptor)
}

func (d *Dispatcher) Resolve(intent string) (HandlerDescriptor, error) {
	if d == nil {
		return HandlerDescriptor{}, &NotFoundError{Intent: intent}
	}
	return d.registry.Resolve(intent)
}

func (d *Dispatcher) Intents() []string {
	if d == nil {
		return []string{}
	}
	return d.registry.Intents()
}

func (d *Dispatcher) Descriptors() []HandlerDescriptor {
	if d == nil {
		return []HandlerDescriptor{}
	}
	return d.registry.Descriptors()
}

// Pending is the eventual result of an Encounter.
type Pending struct {
	done   chan struct{}
	rc     *RequestContext
	intent string
}

func newPending(rc *RequestContext) *Pending {
	return &Pending{done: make(chan struct{}), rc: rc, intent: rc.Intent()}
}

func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the dispatch completed or ctx ended. The returned
// context belongs to the caller once Wait returns it.
func (p *Pending) Wait(ctx context.Context) (*RequestContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.done:
		return p.rc, nil
	case <-ctx.Done():
		select {
		case <-p.done:
			return p.rc, nil
		default:
		}
		return nil, ctx.Err()
	}
}

// Encounter seeds a RequestContext and schedules resolution, binding and
// invocation on the executor. Failures are captured in the outcome.
func (d *Dispatcher) Encounter(ctx context.Context, in Inbound) *Pending {
	if ctx == nil {
		ctx = context.Background()
	}
	rc := d.newRequestContext(in.Scheme, in.Raw)
	rc.intent = strings.TrimSpace(in.Intent)
	rc.Seed(in.Payload)
	pending := newPending(rc)

	err := d.executor.Go(ctx, func() {
		defer close(pending.done)
		d.encounter(ctx, rc)
	})
	if err != nil {
		rc.fail(&HandlerExecutionError{
			Intent: rc.intent,
			Cause:  fmt.Errorf("dispatch not scheduled: %w", err),
		})
		close(pending.done)
	}
	return pending
}

// Dispatch runs Encounter and FallAway back to back for in-process callers.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) (*RequestContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rc, err := d.Encounter(ctx, in).Wait(ctx)
	if err != nil {
		return nil, err
	}
	d.FallAway(ctx, rc)
	return rc, nil
}

// FallAway runs the outbound interceptors and records the dispatch.
func (d *Dispatcher) FallAway(ctx context.Context, rc *RequestContext) {
	if d == nil || rc == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if rc.completedAt.IsZero() {
		rc.completedAt = d.clock().UTC()
	}
	d.chain.RunOutbound(ctx, rc.Scheme(), rc)
	d.observeDispatch(ctx, rc)
}

// reject completes a dispatch that failed before it reached the core.
func (d *Dispatcher) reject(scheme string, raw any, intent string, err error) *Pending {
	rc := d.newRequestContext(scheme, raw)
	rc.intent = strings.TrimSpace(intent)
	rc.fail(err)
	pending := newPending(rc)
	close(pending.done)
	return pending
}

func (d *Dispatcher) newRequestContext(scheme string, raw any) *RequestContext {
	rc := NewRequestContext(scheme, raw)
	rc.traceID = d.traceIDs()
	rc.receivedAt = d.clock().UTC()
	return rc
}

func (d *Dispatcher) encounter(ctx context.Context, rc *RequestContext) {
	defer func() {
		if recovered := recover(); recovered != nil {
			rc.fail(&HandlerExecutionError{
				Intent:   rc.intent,
				Cause:    fmt.Errorf("dispatch panic: %v", recovered),
				Panicked: true,
			})
		}
	}()

	d.chain.RunInbound(ctx, rc.Scheme(), rc)

	entry, err := d.registry.lookup(rc.intent)
	if err != nil {
		if notFound, ok := err.(*NotFoundError); ok {
			notFound.Scheme = rc.Scheme()
		}
		rc.fail(err)
		return
	}
	rc.SetMetadata(MetadataRoute, entry.descriptor.Intent)
	rc.SetMetadata(MetadataHandler, entry.descriptor.Name)

	if !entry.descriptor.Allows(rc.Scheme()) {
		rc.fail(&NotFoundError{
			Intent: rc.intent,
			Scheme: rc.Scheme(),
			Reason: NotFoundReasonProtocolBlocked,
		})
		return
	}

	args, err := entry.params.Bind(rc)
	if err != nil {
		rc.fail(&ValidationError{Intent: rc.intent, Cause: err})
		return
	}

	result, err := invokeHandler(ctx, rc.intent, entry.descriptor.Invoke, args)
	if err != nil {
		rc.fail(err)
		return
	}
	rc.succeed(result)
}

func invokeHandler(ctx context.Context, intent string, fn Invocable, args Arguments) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = &HandlerExecutionError{
				Intent:   intent,
				Cause:    fmt.Errorf("handler panic: %v", recovered),
				Panicked: true,
			}
		}
	}()
	result, err = fn(ctx, args)
	if err != nil {
		return nil, &HandlerExecutionError{Intent: intent, Cause: err}
	}
	return result, nil
}

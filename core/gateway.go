package core

import (
	"context"
	"fmt"
	"strings"
)

const (
	StageExtractIntent      = "extract_intent"
	StageExtractPayload     = "extract_payload"
	StageBuildResponse      = "build_response"
	StageBuildErrorResponse = "build_error_response"
)

// Gateway binds a ProtocolAdapter to a Dispatcher. Every message that
// enters through Encounter or Serve produces exactly one response.
type Gateway[I any, O any] struct {
	dispatcher *Dispatcher
	adapter    ProtocolAdapter[I, O]
	scheme     string
}

func NewGateway[I any, O any](dispatcher *Dispatcher, adapter ProtocolAdapter[I, O]) (*Gateway[I, O], error) {
	if dispatcher == nil {
		return nil, registrationError("core: gateway requires a dispatcher", nil)
	}
	if adapter == nil {
		return nil, registrationError("core: gateway requires a protocol adapter", nil)
	}
	scheme := normalizeScheme(adapter.Scheme())
	if scheme == "" || scheme == SchemeAll {
		return nil, registrationError(
			fmt.Sprintf("core: adapter scheme %q is not a concrete scheme", adapter.Scheme()),
			nil,
		)
	}
	return &Gateway[I, O]{dispatcher: dispatcher, adapter: adapter, scheme: scheme}, nil
}

func (g *Gateway[I, O]) Scheme() string { return g.scheme }

func (g *Gateway[I, O]) Dispatcher() *Dispatcher { return g.dispatcher }

// Encounter extracts intent and payload from raw and hands them to the
// dispatcher. Extraction failures complete the dispatch with an AdapterError.
func (g *Gateway[I, O]) Encounter(ctx context.Context, raw I) *Pending {
	intent, err := guard(func() (string, error) { return g.adapter.ExtractIntent(raw) })
	if err != nil {
		return g.dispatcher.reject(g.scheme, raw, "", &AdapterError{
			Scheme: g.scheme,
			Stage:  StageExtractIntent,
			Cause:  err,
		})
	}
	payload, err := guard(func() (Payload, error) { return g.adapter.ExtractPayload(raw) })
	if err != nil {
		return g.dispatcher.reject(g.scheme, raw, intent, &AdapterError{
			Scheme: g.scheme,
			Stage:  StageExtractPayload,
			Cause:  err,
		})
	}
	return g.dispatcher.Encounter(ctx, Inbound{
		Scheme:  g.scheme,
		Intent:  intent,
		Payload: payload,
		Raw:     raw,
	})
}

// FallAway runs the outbound hooks and builds the protocol response for rc.
func (g *Gateway[I, O]) FallAway(ctx context.Context, rc *RequestContext) O {
	if rc == nil {
		var zero O
		return zero
	}
	g.dispatcher.FallAway(ctx, rc)
	raw, _ := rc.Raw().(I)
	outcome := rc.Outcome()
	if outcome.Succeeded() {
		out, err := guard(func() (O, error) { return g.adapter.BuildResponse(outcome.Result, raw), nil })
		if err == nil {
			return out
		}
		g.reportBuildFailure(ctx, rc, StageBuildResponse, err)
		return g.respondError(ctx, rc, raw, &AdapterError{Scheme: g.scheme, Stage: StageBuildResponse, Cause: err})
	}
	cause := outcome.Err
	if cause == nil {
		cause = &HandlerExecutionError{Intent: rc.Intent(), Cause: fmt.Errorf("dispatch produced no outcome")}
	}
	return g.respondError(ctx, rc, raw, cause)
}

// Serve runs a full round trip. When ctx ends before the handler returns,
// the caller gets an error response and the outbound hooks run once the
// handler completes.
func (g *Gateway[I, O]) Serve(ctx context.Context, raw I) O {
	if ctx == nil {
		ctx = context.Background()
	}
	pending := g.Encounter(ctx, raw)
	rc, err := pending.Wait(ctx)
	if err == nil {
		return g.FallAway(ctx, rc)
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		<-pending.Done()
		g.dispatcher.FallAway(detached, pending.rc)
	}()
	cause := &HandlerExecutionError{Intent: pending.intent, Cause: err}
	return g.respondError(ctx, nil, raw, cause)
}

func (g *Gateway[I, O]) respondError(ctx context.Context, rc *RequestContext, raw I, cause error) O {
	out, err := guard(func() (O, error) { return g.adapter.BuildErrorResponse(cause, raw), nil })
	if err == nil {
		return out
	}
	g.reportBuildFailure(ctx, rc, StageBuildErrorResponse, err)

	if fallback, ok := g.adapter.(FallbackResponder[I, O]); ok {
		buildErr := &AdapterError{Scheme: g.scheme, Stage: StageBuildErrorResponse, Cause: err}
		out, err = guard(func() (O, error) { return fallback.Fallback(buildErr, raw), nil })
		if err == nil {
			return out
		}
	}
	var zero O
	return zero
}

func (g *Gateway[I, O]) reportBuildFailure(ctx context.Context, rc *RequestContext, stage string, err error) {
	tags := map[string]string{"scheme": g.scheme, "stage": stage}
	g.dispatcher.recordCounter(ctx, MetricResponseBuildFailure, 1, tags)
	fields := map[string]any{
		"scheme": g.scheme,
		"stage":  stage,
		"error":  err.Error(),
	}
	if rc != nil {
		fields["intent"] = rc.Intent()
		fields["trace_id"] = rc.TraceID()
	}
	g.dispatcher.logWithLevel(ctx, "error", "response build failed", fields)
}

// guard runs fn and converts a panic into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			var zero T
			out = zero
			err = fmt.Errorf("%s", strings.TrimSpace(fmt.Sprint(recovered)))
		}
	}()
	return fn()
}

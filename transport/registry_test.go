package transport

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-rendezvous/core"
)

type staticAdapter struct {
	scheme string
}

func (a staticAdapter) Scheme() string { return a.scheme }

func TestRegistry_RegisterGetAndListDeterministic(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register("", staticAdapter{scheme: "websocket"}); err != nil {
		t.Fatalf("register websocket adapter: %v", err)
	}
	if err := registry.Register("HTTP", staticAdapter{scheme: "http"}); err != nil {
		t.Fatalf("register http adapter: %v", err)
	}
	if _, ok := registry.Get("http"); !ok {
		t.Fatalf("expected http adapter to be registered")
	}

	listed := registry.List()
	if len(listed) != 2 || listed[0].Scheme() != "http" || listed[1].Scheme() != "websocket" {
		t.Fatalf("expected sorted adapters, got %v", listed)
	}
	if err := registry.Register("http", staticAdapter{scheme: "http"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestDefaultRegistry_BuildsAdaptersFromConfig(t *testing.T) {
	registry := NewDefaultRegistry()
	if got := registry.Names(); len(got) != 3 || got[0] != "http" || got[1] != "nats" || got[2] != "websocket" {
		t.Fatalf("unexpected factory names: %v", got)
	}

	httpAdapter, err := BuildAs[*HTTPAdapter](registry, "http", map[string]any{
		"routes":         []any{map[string]any{"pattern": "GET /users/{userId}", "intent": "user.get"}},
		"dispatch_path":  "/dispatch",
		"max_body_bytes": "2048",
	})
	if err != nil {
		t.Fatalf("build http adapter: %v", err)
	}
	cfg := httpAdapter.Config()
	if len(cfg.Routes) != 1 || cfg.Routes[0].Intent != "user.get" {
		t.Fatalf("unexpected routes: %+v", cfg.Routes)
	}
	if cfg.DispatchPath != "/dispatch/" || cfg.MaxBodyBytes != 2048 || cfg.IntentHeader != DefaultIntentHeader {
		t.Fatalf("unexpected normalized config: %+v", cfg)
	}

	natsAdapter, err := BuildAs[*NATSAdapter](registry, "nats", map[string]any{"timeout": "3s"})
	if err != nil {
		t.Fatalf("build nats adapter: %v", err)
	}
	if natsAdapter.timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", natsAdapter.timeout)
	}

	if _, err := BuildAs[*NATSAdapter](registry, "websocket", nil); err == nil {
		t.Fatalf("expected type mismatch error")
	}
	if _, err := registry.Build("grpc", nil); err == nil {
		t.Fatalf("expected unknown adapter error")
	}
	if _, err := registry.Build("http", map[string]any{"max_body_bytes": "lots"}); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestErrorPayloadFor(t *testing.T) {
	validation := ErrorPayloadFor(&core.ValidationError{
		Intent: "user.get",
		Cause:  &core.MissingRequiredParameterError{Name: "userId"},
	})
	if validation.Code != core.DispatchErrorValidation || validation.Status != http.StatusBadRequest || validation.Retryable {
		t.Fatalf("unexpected validation payload: %+v", validation)
	}
	if validation.Details["parameter"] != "userId" || validation.Details["fields"] == nil {
		t.Fatalf("expected field details, got %v", validation.Details)
	}

	handler := ErrorPayloadFor(&core.HandlerExecutionError{Intent: "x", Cause: errors.New("boom")})
	if !handler.Retryable || handler.Kind != "handler_execution" {
		t.Fatalf("unexpected handler payload: %+v", handler)
	}
	crashed := ErrorPayloadFor(&core.HandlerExecutionError{Intent: "x", Cause: errors.New("handler panic: secret"), Panicked: true})
	if strings.Contains(crashed.Message, "secret") || crashed.Code != core.DispatchErrorHandlerFailed {
		t.Fatalf("expected redacted panic payload, got %+v", crashed)
	}
	if ErrorPayloadFor(nil) != nil {
		t.Fatalf("expected nil payload for nil error")
	}
}

func TestTransportErrorsUseDispatchCodes(t *testing.T) {
	err := badInput("transport: bad", map[string]any{"field": "x"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.DispatchErrorBadInput || rich.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope: %s %d", rich.TextCode, rich.Code)
	}

	wrapped := transportWrapError(errors.New("dial tcp"), goerrors.CategoryExternal, "transport: nats connect failed", http.StatusBadGateway, nil)
	if !goerrors.As(wrapped, &rich) || rich.TextCode != core.DispatchErrorExternalFailure {
		t.Fatalf("expected external failure code, got %v", wrapped)
	}
}

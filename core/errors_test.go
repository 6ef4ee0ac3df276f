package core

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		textCode string
		category goerrors.Category
	}{
		{
			name:     "not found",
			err:      &NotFoundError{Intent: "user.get", Scheme: SchemeHTTP},
			status:   http.StatusNotFound,
			textCode: DispatchErrorIntentNotFound,
			category: goerrors.CategoryNotFound,
		},
		{
			name:     "validation",
			err:      &ValidationError{Intent: "user.get", Cause: &MissingRequiredParameterError{Name: "id"}},
			status:   http.StatusBadRequest,
			textCode: DispatchErrorValidation,
			category: goerrors.CategoryValidation,
		},
		{
			name:     "handler",
			err:      &HandlerExecutionError{Intent: "user.get", Cause: stderrors.New("db down")},
			status:   http.StatusInternalServerError,
			textCode: DispatchErrorHandlerFailed,
			category: goerrors.CategoryOperation,
		},
		{
			name:     "adapter",
			err:      &AdapterError{Scheme: SchemeWebSocket, Stage: StageExtractIntent, Cause: stderrors.New("bad frame")},
			status:   http.StatusInternalServerError,
			textCode: DispatchErrorAdapterFailed,
			category: goerrors.CategoryInternal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, mapped.Code)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, mapped.Category)
			}
			if mapped.Source != tc.err {
				t.Fatalf("expected the dispatch error as source")
			}
		})
	}
}

func TestMapError_ValidationCarriesFieldDetails(t *testing.T) {
	err := &ValidationError{
		Intent: "user.list",
		Cause:  &CoercionError{Name: "limit", Value: "ten", Cause: stderrors.New("invalid syntax")},
	}
	mapped := MapError(err)
	if len(mapped.ValidationErrors) != 1 || mapped.ValidationErrors[0].Field != "limit" {
		t.Fatalf("expected limit field error, got %+v", mapped.ValidationErrors)
	}
	if mapped.Metadata["parameter"] != "limit" || mapped.Metadata["intent"] != "user.list" {
		t.Fatalf("unexpected metadata: %v", mapped.Metadata)
	}
}

func TestHandlerExecutionError_KeepsRichCauseStatus(t *testing.T) {
	cause := goerrors.New("user not found", goerrors.CategoryNotFound).WithCode(http.StatusNotFound)
	err := &HandlerExecutionError{Intent: "user.get", Cause: cause}
	if got := StatusFor(err); got != http.StatusNotFound {
		t.Fatalf("expected handler-chosen 404, got %d", got)
	}
	if mapped := MapError(err); mapped.TextCode != DispatchErrorHandlerFailed {
		t.Fatalf("expected handler failed text code, got %q", mapped.TextCode)
	}

	panicked := &HandlerExecutionError{Intent: "user.get", Cause: cause, Panicked: true}
	mapped := MapError(panicked)
	if mapped.Code != http.StatusInternalServerError || mapped.Severity != goerrors.SeverityCritical {
		t.Fatalf("expected critical 500 for panic, got %d/%v", mapped.Code, mapped.Severity)
	}
	if strings.Contains(mapped.Message, cause.Error()) {
		t.Fatalf("expected panic value to be redacted, got %q", mapped.Message)
	}
	if mapped.Source != panicked {
		t.Fatalf("expected source to keep the panic for logs")
	}
}

func TestMapError_PlainErrorsGetDefaults(t *testing.T) {
	mapped := MapError(stderrors.New("boom"))
	if mapped == nil || mapped.Code == 0 || mapped.TextCode == "" {
		t.Fatalf("expected default envelope, got %+v", mapped)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	if StatusFor(nil) != http.StatusOK {
		t.Fatalf("expected 200 for nil error")
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("transport: %w", &ValidationError{Intent: "x", Cause: stderrors.New("bad")})
	nested := &HandlerExecutionError{Intent: "outer", Cause: &NotFoundError{Intent: "inner"}}
	cases := map[string]struct {
		err  error
		want ErrorKind
	}{
		"nil":        {nil, KindNone},
		"wrapped":    {wrapped, KindValidation},
		"nested":     {nested, KindHandlerExecution},
		"adapter":    {&AdapterError{Cause: stderrors.New("x")}, KindAdapter},
		"not found":  {&NotFoundError{Intent: "x"}, KindNotFound},
		"unexpected": {stderrors.New("x"), KindUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
	if KindNone.String() != "none" {
		t.Fatalf("expected none label for KindNone")
	}
}

func TestErrorSentinels(t *testing.T) {
	cause := stderrors.New("root")
	cases := map[error]error{
		&NotFoundError{Intent: "x"}:                       ErrIntentNotFound,
		&ValidationError{Intent: "x", Cause: cause}:       ErrValidation,
		&HandlerExecutionError{Intent: "x", Cause: cause}: ErrHandlerExecution,
		&AdapterError{Scheme: "http", Cause: cause}:       ErrAdapter,
		&MissingRequiredParameterError{Name: "id"}:        ErrResolution,
		&CoercionError{Name: "id", Cause: cause}:          ErrResolution,
	}
	for err, sentinel := range cases {
		if !stderrors.Is(err, sentinel) {
			t.Fatalf("expected %T to match %v", err, sentinel)
		}
	}
}

package transport

import (
	"maps"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-rendezvous/core"
)

// ErrorPayload is the wire form of a failed dispatch shared by every adapter.
type ErrorPayload struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Kind      string         `json:"kind,omitempty"`
	Status    int            `json:"status,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable"`
}

// ErrorPayloadFor renders cause through core.MapError. Only handler failures
// with a server-side status are marked retryable.
func ErrorPayloadFor(cause error) *ErrorPayload {
	if cause == nil {
		return nil
	}
	mapped := core.MapError(cause)
	kind := core.KindOf(cause)
	payload := &ErrorPayload{
		Code:      mapped.TextCode,
		Message:   mapped.Message,
		Kind:      kind.String(),
		Status:    mapped.Code,
		Retryable: kind == core.KindHandlerExecution && mapped.Code >= http.StatusInternalServerError,
	}
	if len(mapped.Metadata) > 0 {
		payload.Details = maps.Clone(mapped.Metadata)
	}
	if len(mapped.ValidationErrors) > 0 {
		if payload.Details == nil {
			payload.Details = map[string]any{}
		}
		payload.Details["fields"] = mapped.ValidationErrors
	}
	return payload
}

// StatusFor returns the HTTP status used to render cause.
func StatusFor(cause error) int {
	return core.StatusFor(cause)
}

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(core.DefaultTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(core.DefaultTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func badInput(message string, metadata map[string]any) error {
	return transportError(message, goerrors.CategoryBadInput, http.StatusBadRequest, metadata)
}

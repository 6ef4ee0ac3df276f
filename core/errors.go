package core

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DispatchErrorBadInput         = "RENDEZVOUS_BAD_INPUT"
	DispatchErrorConflict         = "RENDEZVOUS_CONFLICT"
	DispatchErrorIntentNotFound   = "RENDEZVOUS_INTENT_NOT_FOUND"
	DispatchErrorValidation       = "RENDEZVOUS_VALIDATION_FAILED"
	DispatchErrorHandlerFailed    = "RENDEZVOUS_HANDLER_FAILED"
	DispatchErrorAdapterFailed    = "RENDEZVOUS_ADAPTER_FAILED"
	DispatchErrorUnauthorized     = "RENDEZVOUS_UNAUTHORIZED"
	DispatchErrorForbidden        = "RENDEZVOUS_FORBIDDEN"
	DispatchErrorRateLimited      = "RENDEZVOUS_RATE_LIMITED"
	DispatchErrorExternalFailure  = "RENDEZVOUS_EXTERNAL_FAILURE"
	DispatchErrorInternal         = "RENDEZVOUS_INTERNAL_ERROR"
	DispatchErrorRecordNotFound   = "RENDEZVOUS_RECORD_NOT_FOUND"
	NotFoundReasonUnknownIntent   = "unknown_intent"
	NotFoundReasonProtocolBlocked = "protocol_not_allowed"
)

var (
	ErrIntentNotFound   = errors.New("core: intent not found")
	ErrValidation       = errors.New("core: parameter validation failed")
	ErrHandlerExecution = errors.New("core: handler execution failed")
	ErrAdapter          = errors.New("core: protocol adapter failed")
	ErrResolution       = errors.New("core: parameter resolution failed")
)

type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindNotFound         ErrorKind = "not_found"
	KindValidation       ErrorKind = "validation"
	KindHandlerExecution ErrorKind = "handler_execution"
	KindAdapter          ErrorKind = "adapter"
	KindUnknown          ErrorKind = "unknown"
)

func (k ErrorKind) String() string {
	if k == KindNone {
		return "none"
	}
	return string(k)
}

// NotFoundError reports an intent that no handler accepts, either because
// nothing matched or because the matching handler is not exposed on the
// request scheme.
type NotFoundError struct {
	Intent string
	Scheme string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason == NotFoundReasonProtocolBlocked {
		return fmt.Sprintf("core: intent %q is not exposed over %q", e.Intent, e.Scheme)
	}
	return fmt.Sprintf("core: no handler registered for intent %q", e.Intent)
}

func (e *NotFoundError) Unwrap() error { return ErrIntentNotFound }

func (e *NotFoundError) ToServiceError() *goerrors.Error {
	reason := e.Reason
	if reason == "" {
		reason = NotFoundReasonUnknownIntent
	}
	return dispatchEnvelope(e, goerrors.CategoryNotFound, http.StatusNotFound, DispatchErrorIntentNotFound, map[string]any{
		"intent": e.Intent,
		"scheme": e.Scheme,
		"reason": reason,
	})
}

// ValidationError wraps the resolution failure that stopped parameter binding.
type ValidationError struct {
	Intent string
	Cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("core: invalid parameters for intent %q: %v", e.Intent, e.Cause)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Cause}
}

func (e *ValidationError) ToServiceError() *goerrors.Error {
	field := ""
	var missing *MissingRequiredParameterError
	var coercion *CoercionError
	switch {
	case errors.As(e.Cause, &missing):
		field = missing.Name
	case errors.As(e.Cause, &coercion):
		field = coercion.Name
	}
	message := "invalid request parameters"
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	rich := goerrors.NewValidation(
		fmt.Sprintf("core: invalid parameters for intent %q", e.Intent),
		goerrors.FieldError{Field: field, Message: message},
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(DispatchErrorValidation).
		WithMetadata(map[string]any{"intent": e.Intent})
	if field != "" {
		rich.WithMetadata(map[string]any{"parameter": field})
	}
	rich.Source = e
	return rich
}

// HandlerExecutionError wraps a failure raised by the handler itself.
type HandlerExecutionError struct {
	Intent   string
	Cause    error
	Panicked bool
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("core: handler for intent %q failed: %v", e.Intent, e.Cause)
}

func (e *HandlerExecutionError) Unwrap() []error {
	return []error{ErrHandlerExecution, e.Cause}
}

// ToServiceError keeps the status of a rich handler error that chose one and
// otherwise reports an operation failure. A panic is reported without its value.
func (e *HandlerExecutionError) ToServiceError() *goerrors.Error {
	code := http.StatusInternalServerError
	category := goerrors.CategoryOperation
	var rich *goerrors.Error
	if !e.Panicked && goerrors.As(e.Cause, &rich) && rich.Code > 0 {
		code = rich.Code
		category = rich.Category
	}
	out := dispatchEnvelope(e, category, code, DispatchErrorHandlerFailed, map[string]any{"intent": e.Intent})
	if e.Panicked {
		// Panic values stay on Source for logs and never reach a caller.
		out.Message = fmt.Sprintf("core: handler for intent %q failed", e.Intent)
		out.WithSeverity(goerrors.SeverityCritical)
	}
	return out
}

// AdapterError reports a protocol adapter that could not read the request or
// build a response.
type AdapterError struct {
	Scheme string
	Stage  string
	Cause  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("core: %s adapter failed during %s: %v", e.Scheme, e.Stage, e.Cause)
}

func (e *AdapterError) Unwrap() []error {
	return []error{ErrAdapter, e.Cause}
}

func (e *AdapterError) ToServiceError() *goerrors.Error {
	return dispatchEnvelope(e, goerrors.CategoryInternal, http.StatusInternalServerError, DispatchErrorAdapterFailed, map[string]any{
		"scheme": e.Scheme,
		"stage":  e.Stage,
	})
}

// MissingRequiredParameterError is a resolution failure for a required
// parameter with no value and no default.
type MissingRequiredParameterError struct {
	Name    string
	Sources []ParameterSource
}

func (e *MissingRequiredParameterError) Error() string {
	return fmt.Sprintf("core: missing required parameter %q", e.Name)
}

func (e *MissingRequiredParameterError) Unwrap() error { return ErrResolution }

// CoercionError is a resolution failure converting a raw value to the
// declared parameter type.
type CoercionError struct {
	Name  string
	Type  reflect.Type
	Value any
	Cause error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("core: parameter %q: cannot convert %v (%T) to %s: %v", e.Name, e.Value, e.Value, typeName(e.Type), e.Cause)
}

func (e *CoercionError) Unwrap() []error {
	return []error{ErrResolution, e.Cause}
}

// AmbiguousParameterError rejects a primitive parameter declared without a
// source or hints.
type AmbiguousParameterError struct {
	Intent string
	Name   string
	Type   reflect.Type
}

func (e *AmbiguousParameterError) Error() string {
	return fmt.Sprintf(
		"core: parameter %q of intent %q is a %s with no source; declare a source or hints",
		e.Name, e.Intent, typeName(e.Type),
	)
}

func (e *AmbiguousParameterError) ToServiceError() *goerrors.Error {
	return dispatchEnvelope(e, goerrors.CategoryBadInput, http.StatusBadRequest, DispatchErrorBadInput, map[string]any{
		"intent":    e.Intent,
		"parameter": e.Name,
	})
}

// KindOf classifies err into one of the dispatch failure kinds.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch err.(type) {
	case *AdapterError:
		return KindAdapter
	case *NotFoundError:
		return KindNotFound
	case *ValidationError:
		return KindValidation
	case *HandlerExecutionError:
		return KindHandlerExecution
	}
	var (
		notFound   *NotFoundError
		validation *ValidationError
		handler    *HandlerExecutionError
		adapter    *AdapterError
	)
	switch {
	case errors.As(err, &adapter):
		return KindAdapter
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &handler):
		return KindHandlerExecution
	default:
		return KindUnknown
	}
}

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

// MapError normalizes any error into a go-errors envelope carrying an HTTP
// status and a stable text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		return ensureDispatchErrorEnvelope(converter.ToServiceError())
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureDispatchErrorEnvelope(rich)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureDispatchErrorEnvelope(mapped)
}

// StatusFor returns the default HTTP-like status for err.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return MapError(err).Code
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return MapError(err)
}

func ensureDispatchErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = dispatchHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = DefaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

// DefaultTextCode is the text code used for a category when none was set.
func DefaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return DispatchErrorBadInput
	case goerrors.CategoryValidation:
		return DispatchErrorValidation
	case goerrors.CategoryNotFound:
		return DispatchErrorIntentNotFound
	case goerrors.CategoryAuth:
		return DispatchErrorUnauthorized
	case goerrors.CategoryAuthz:
		return DispatchErrorForbidden
	case goerrors.CategoryConflict:
		return DispatchErrorConflict
	case goerrors.CategoryRateLimit:
		return DispatchErrorRateLimited
	case goerrors.CategoryOperation:
		return DispatchErrorHandlerFailed
	case goerrors.CategoryExternal:
		return DispatchErrorExternalFailure
	default:
		return DispatchErrorInternal
	}
}

func dispatchHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// dispatchEnvelope builds the envelope directly; goerrors.Wrap would clone a
// rich error found in the source chain instead of wrapping source.
func dispatchEnvelope(
	source error,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	out := goerrors.New(source.Error(), category).
		WithCode(code).
		WithTextCode(textCode)
	out.Source = source
	if len(metadata) > 0 {
		out.WithMetadata(metadata)
	}
	return out
}

func registrationError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(DispatchErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func registrationConflict(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(DispatchErrorConflict)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "any"
	}
	return t.String()
}

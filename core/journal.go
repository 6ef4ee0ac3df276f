package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	JournalStatusSucceeded = "succeeded"
	JournalStatusFailed    = "failed"
)

// JournalEntry is the durable record of one completed dispatch.
type JournalEntry struct {
	ID          string
	TraceID     string
	Intent      string
	Route       string
	Scheme      string
	SessionID   string
	Handler     string
	Status      string
	ErrorKind   string
	ErrorCode   string
	StatusCode  int
	Message     string
	DurationMS  int64
	Metadata    map[string]any
	ReceivedAt  time.Time
	CompletedAt time.Time
}

var ErrJournalEntryNotFound = errors.New("core: journal entry not found")

type JournalEntryNotFoundError struct {
	ID string
}

func (e *JournalEntryNotFoundError) Error() string {
	return fmt.Sprintf("core: journal entry %q not found", e.ID)
}

func (e *JournalEntryNotFoundError) Unwrap() error { return ErrJournalEntryNotFound }

func (e *JournalEntryNotFoundError) ToServiceError() *goerrors.Error {
	return dispatchEnvelope(e, goerrors.CategoryNotFound, http.StatusNotFound, DispatchErrorRecordNotFound, map[string]any{
		"id": e.ID,
	})
}

type JournalSink interface {
	Record(ctx context.Context, entry JournalEntry) error
}

type JournalSinkFunc func(ctx context.Context, entry JournalEntry) error

func (f JournalSinkFunc) Record(ctx context.Context, entry JournalEntry) error {
	return f(ctx, entry)
}

// NewJournalInterceptor records every completed dispatch on sink. It runs
// outbound on all schemes with no explicit order. Entries complete at the
// request's CompletedAt, so they follow the dispatcher clock.
func NewJournalInterceptor(sink JournalSink) Interceptor {
	return NewInterceptor("journal", func(ctx context.Context, rc *RequestContext) error {
		if sink == nil {
			return errors.New("core: journal sink is nil")
		}
		completedAt := rc.CompletedAt()
		if completedAt.IsZero() {
			completedAt = time.Now().UTC()
		}
		return sink.Record(ctx, JournalEntryFor(rc, completedAt))
	}).Outbound()
}

// JournalEntryFor snapshots rc into a journal entry completed at completedAt.
func JournalEntryFor(rc *RequestContext, completedAt time.Time) JournalEntry {
	entry := JournalEntry{
		ID:          uuid.NewString(),
		TraceID:     rc.TraceID(),
		Intent:      rc.Intent(),
		Route:       unmatchedRoute,
		Scheme:      rc.Scheme(),
		SessionID:   rc.SessionID(),
		Status:      JournalStatusSucceeded,
		ReceivedAt:  rc.ReceivedAt(),
		CompletedAt: completedAt,
		Metadata:    map[string]any{},
	}
	if value, ok := rc.Metadata(MetadataRoute); ok {
		if route, _ := value.(string); route != "" {
			entry.Route = route
		}
	}
	if value, ok := rc.Metadata(MetadataHandler); ok {
		entry.Handler, _ = value.(string)
	}
	if !rc.ReceivedAt().IsZero() && completedAt.After(rc.ReceivedAt()) {
		entry.DurationMS = completedAt.Sub(rc.ReceivedAt()).Milliseconds()
	}
	if method := rc.Method(); method != "" {
		entry.Metadata[MetadataMethod] = method
	}

	outcome := rc.Outcome()
	if outcome.Succeeded() {
		return entry
	}
	entry.Status = JournalStatusFailed
	entry.ErrorKind = KindOf(outcome.Err).String()
	if outcome.Err == nil {
		return entry
	}
	entry.Message = outcome.Err.Error()
	if mapped := MapError(outcome.Err); mapped != nil {
		entry.ErrorCode = mapped.TextCode
		entry.StatusCode = mapped.Code
		if len(mapped.Metadata) > 0 {
			details := maps.Clone(mapped.Metadata)
			entry.Metadata["error"] = details
		}
		if mapped.Category == goerrors.CategoryValidation && len(mapped.ValidationErrors) > 0 {
			entry.Metadata["validation"] = mapped.ValidationErrors
		}
	}
	return entry
}

// JournalFilter narrows a journal listing. Zero values match everything.
type JournalFilter struct {
	Intent  string
	Route   string
	Scheme  string
	Status  string
	TraceID string
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

type JournalPage struct {
	Items   []JournalEntry
	Page    int
	PerPage int
	Total   int
}

type JournalReader interface {
	Get(ctx context.Context, id string) (JournalEntry, error)
	List(ctx context.Context, filter JournalFilter) (JournalPage, error)
}

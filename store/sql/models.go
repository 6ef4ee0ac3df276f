package sqlstore

import (
	"time"

	"github.com/goliatone/go-rendezvous/core"
	"github.com/uptrace/bun"
)

type journalRecord struct {
	bun.BaseModel `bun:"table:rendezvous_dispatch_journal,alias:rdj"`

	ID          string         `bun:"id,pk"`
	TraceID     string         `bun:"trace_id,notnull"`
	Intent      string         `bun:"intent,notnull"`
	Route       string         `bun:"route,notnull"`
	Scheme      string         `bun:"scheme,notnull"`
	SessionID   string         `bun:"session_id,notnull"`
	Handler     string         `bun:"handler,notnull"`
	Status      string         `bun:"status,notnull"`
	ErrorKind   string         `bun:"error_kind,notnull"`
	ErrorCode   string         `bun:"error_code,notnull"`
	StatusCode  int            `bun:"status_code,notnull"`
	Message     string         `bun:"message,notnull"`
	DurationMS  int64          `bun:"duration_ms,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	ReceivedAt  *time.Time     `bun:"received_at,nullzero"`
	CompletedAt time.Time      `bun:"completed_at,nullzero,notnull,default:current_timestamp"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newJournalRecord(entry core.JournalEntry, now time.Time) *journalRecord {
	record := &journalRecord{
		ID:          entry.ID,
		TraceID:     entry.TraceID,
		Intent:      entry.Intent,
		Route:       entry.Route,
		Scheme:      entry.Scheme,
		SessionID:   entry.SessionID,
		Handler:     entry.Handler,
		Status:      entry.Status,
		ErrorKind:   entry.ErrorKind,
		ErrorCode:   entry.ErrorCode,
		StatusCode:  entry.StatusCode,
		Message:     entry.Message,
		DurationMS:  entry.DurationMS,
		Metadata:    copyAnyMap(entry.Metadata),
		CompletedAt: entry.CompletedAt.UTC(),
		CreatedAt:   now,
	}
	if !entry.ReceivedAt.IsZero() {
		received := entry.ReceivedAt.UTC()
		record.ReceivedAt = &received
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = now
	}
	return record
}

func (r *journalRecord) toDomain() core.JournalEntry {
	if r == nil {
		return core.JournalEntry{}
	}
	entry := core.JournalEntry{
		ID:          r.ID,
		TraceID:     r.TraceID,
		Intent:      r.Intent,
		Route:       r.Route,
		Scheme:      r.Scheme,
		SessionID:   r.SessionID,
		Handler:     r.Handler,
		Status:      r.Status,
		ErrorKind:   r.ErrorKind,
		ErrorCode:   r.ErrorCode,
		StatusCode:  r.StatusCode,
		Message:     r.Message,
		DurationMS:  r.DurationMS,
		Metadata:    copyAnyMap(r.Metadata),
		CompletedAt: r.CompletedAt.UTC(),
	}
	if r.ReceivedAt != nil {
		entry.ReceivedAt = r.ReceivedAt.UTC()
	}
	return entry
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

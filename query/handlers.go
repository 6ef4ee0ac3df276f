package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-rendezvous/core"
)

type ListIntentsQuery struct {
	catalog core.IntentCatalog
}

func NewListIntentsQuery(catalog core.IntentCatalog) *ListIntentsQuery {
	return &ListIntentsQuery{catalog: catalog}
}

// Query returns the matching handlers in registration order.
func (q *ListIntentsQuery) Query(_ context.Context, msg ListIntentsMessage) ([]IntentSummary, error) {
	if q == nil || q.catalog == nil {
		return nil, queryDependencyError("query: intent catalog is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(msg.Prefix)
	scheme := strings.TrimSpace(msg.Scheme)

	out := []IntentSummary{}
	for _, descriptor := range q.catalog.Descriptors() {
		if prefix != "" && !strings.HasPrefix(descriptor.Intent, prefix) {
			continue
		}
		if scheme != "" && !descriptor.Allows(scheme) {
			continue
		}
		out = append(out, summarize(descriptor))
	}
	return out, nil
}

type DescribeIntentQuery struct {
	catalog core.IntentCatalog
}

func NewDescribeIntentQuery(catalog core.IntentCatalog) *DescribeIntentQuery {
	return &DescribeIntentQuery{catalog: catalog}
}

func (q *DescribeIntentQuery) Query(_ context.Context, msg DescribeIntentMessage) (IntentDescription, error) {
	if q == nil || q.catalog == nil {
		return IntentDescription{}, queryDependencyError("query: intent catalog is required")
	}
	if err := msg.Validate(); err != nil {
		return IntentDescription{}, err
	}
	requested := strings.TrimSpace(msg.Intent)
	descriptor, err := q.catalog.Resolve(requested)
	if err != nil {
		return IntentDescription{}, core.MapError(err)
	}
	return IntentDescription{
		IntentSummary: summarize(descriptor),
		Requested:     requested,
		Parameters:    describeParameters(descriptor.Parameters),
	}, nil
}

type ListJournalQuery struct {
	reader core.JournalReader
}

func NewListJournalQuery(reader core.JournalReader) *ListJournalQuery {
	return &ListJournalQuery{reader: reader}
}

func (q *ListJournalQuery) Query(ctx context.Context, msg ListJournalMessage) (core.JournalPage, error) {
	if q == nil || q.reader == nil {
		return core.JournalPage{}, queryDependencyError("query: journal reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.JournalPage{}, err
	}
	return q.reader.List(ctx, msg.Filter)
}

type GetJournalEntryQuery struct {
	reader core.JournalReader
}

func NewGetJournalEntryQuery(reader core.JournalReader) *GetJournalEntryQuery {
	return &GetJournalEntryQuery{reader: reader}
}

func (q *GetJournalEntryQuery) Query(ctx context.Context, msg GetJournalEntryMessage) (core.JournalEntry, error) {
	if q == nil || q.reader == nil {
		return core.JournalEntry{}, queryDependencyError("query: journal reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.JournalEntry{}, err
	}
	return q.reader.Get(ctx, strings.TrimSpace(msg.ID))
}

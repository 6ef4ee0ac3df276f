package query

import (
	"strings"

	"github.com/goliatone/go-rendezvous/core"
)

const (
	TypeListIntents    = "rendezvous.query.intents.list"
	TypeDescribeIntent = "rendezvous.query.intent.describe"
	TypeListJournal    = "rendezvous.query.journal.list"
	TypeGetJournal     = "rendezvous.query.journal.get"
)

// ListIntentsMessage filters the registered intents. An empty Scheme lists
// every handler; Prefix matches the registered intent or pattern text.
type ListIntentsMessage struct {
	Scheme string
	Prefix string
}

func (ListIntentsMessage) Type() string { return TypeListIntents }

func (m ListIntentsMessage) Validate() error {
	if strings.ContainsAny(m.Scheme, " \t") {
		return queryValidationError("scheme", "scheme must not contain whitespace")
	}
	return nil
}

// DescribeIntentMessage resolves Intent the way a dispatch would, so a
// concrete intent reports the pattern that serves it.
type DescribeIntentMessage struct {
	Intent string
}

func (DescribeIntentMessage) Type() string { return TypeDescribeIntent }

func (m DescribeIntentMessage) Validate() error {
	if strings.TrimSpace(m.Intent) == "" {
		return queryValidationError("intent", "intent is required")
	}
	return nil
}

type ListJournalMessage struct {
	Filter core.JournalFilter
}

func (ListJournalMessage) Type() string { return TypeListJournal }

func (m ListJournalMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "to must not be before from")
	}
	return nil
}

type GetJournalEntryMessage struct {
	ID string
}

func (GetJournalEntryMessage) Type() string { return TypeGetJournal }

func (m GetJournalEntryMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return queryValidationError("id", "journal entry id is required")
	}
	return nil
}

type IntentSummary struct {
	Intent      string   `json:"intent"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Pattern     bool     `json:"pattern"`
	Protocols   []string `json:"protocols,omitempty"`
}

type ParameterSummary struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Source   string   `json:"source"`
	Required bool     `json:"required"`
	Default  *string  `json:"default,omitempty"`
	Hints    []string `json:"hints,omitempty"`
}

type IntentDescription struct {
	IntentSummary
	Requested  string             `json:"requested"`
	Parameters []ParameterSummary `json:"parameters"`
}

func summarize(descriptor core.HandlerDescriptor) IntentSummary {
	return IntentSummary{
		Intent:      descriptor.Intent,
		Name:        descriptor.Name,
		Description: descriptor.Description,
		Pattern:     descriptor.IsPattern(),
		Protocols:   append([]string(nil), descriptor.Protocols...),
	}
}

func describeParameters(specs []core.ParameterSpec) []ParameterSummary {
	out := make([]ParameterSummary, 0, len(specs))
	for _, spec := range specs {
		summary := ParameterSummary{
			Name:     spec.Name,
			Source:   string(spec.Source),
			Required: spec.Required(),
		}
		if summary.Source == "" {
			summary.Source = string(core.SourceAuto)
		}
		if spec.Type != nil {
			summary.Type = spec.Type.String()
		}
		if spec.HasDefault {
			value := spec.Default
			summary.Default = &value
		}
		for _, hint := range spec.Hints {
			summary.Hints = append(summary.Hints, string(hint))
		}
		out = append(out, summary)
	}
	return out
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-rendezvous/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultJournalPerPage = 25

// JournalStore persists one row per completed dispatch. It is a
// core.JournalSink, so it plugs into core.NewJournalInterceptor.
type JournalStore struct {
	db   *bun.DB
	repo repository.Repository[*journalRecord]
}

func NewJournalStore(db *bun.DB) (*JournalStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*journalRecord](db, journalHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid journal repository wiring: %w", err)
		}
	}
	return &JournalStore{db: db, repo: repo}, nil
}

func (s *JournalStore) Record(ctx context.Context, entry core.JournalEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: journal store is not configured")
	}
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if strings.TrimSpace(entry.Intent) == "" {
		return fmt.Errorf("sqlstore: journal entry requires an intent")
	}
	if entry.Status == "" {
		entry.Status = core.JournalStatusSucceeded
	}
	_, err := s.repo.Create(ctx, newJournalRecord(entry, time.Now().UTC()))
	return err
}

func (s *JournalStore) Get(ctx context.Context, id string) (core.JournalEntry, error) {
	if s == nil || s.db == nil {
		return core.JournalEntry{}, fmt.Errorf("sqlstore: journal store is not configured")
	}
	id = strings.TrimSpace(id)
	record := &journalRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.JournalEntry{}, &core.JournalEntryNotFoundError{ID: id}
		}
		return core.JournalEntry{}, err
	}
	return record.toDomain(), nil
}

// List returns entries newest first.
func (s *JournalStore) List(ctx context.Context, filter core.JournalFilter) (core.JournalPage, error) {
	if s == nil || s.repo == nil {
		return core.JournalPage{}, fmt.Errorf("sqlstore: journal store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultJournalPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("completed_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	columns := []struct {
		column string
		value  string
	}{
		{"intent", filter.Intent},
		{"route", filter.Route},
		{"scheme", filter.Scheme},
		{"status", filter.Status},
		{"trace_id", filter.TraceID},
	}
	for _, c := range columns {
		if value := strings.TrimSpace(c.value); value != "" {
			selectors = append(selectors, repository.SelectBy(c.column, "=", value))
		}
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("completed_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("completed_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.JournalPage{}, err
	}
	items := make([]core.JournalEntry, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.JournalPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	}, nil
}

// Prune deletes entries completed before cutoff and reports how many went.
func (s *JournalStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: journal store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*journalRecord)(nil)).
		Where("completed_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

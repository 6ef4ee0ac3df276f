package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-rendezvous/core"
)

const journalEntryCacheKeyPrefix = "go-rendezvous::journal_entry::v1"

// CachedJournalStore serves Get through a cache. Journal rows are written
// once, so cached entries never go stale; List always reads through.
type CachedJournalStore struct {
	base  core.JournalReader
	cache repositorycache.CacheService
}

func NewCachedJournalStore(base core.JournalReader, cacheService repositorycache.CacheService) (*CachedJournalStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base journal reader is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: journal cache service is required")
	}
	return &CachedJournalStore{base: base, cache: cacheService}, nil
}

// JournalEntryCacheKey returns go-rendezvous::journal_entry::v1::<id> with
// the id URL-path escaped.
func JournalEntryCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: journal entry id is required")
	}
	return journalEntryCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedJournalStore) Get(ctx context.Context, id string) (core.JournalEntry, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.JournalEntry{}, fmt.Errorf("sqlstore: cached journal store is not configured")
	}
	cacheKey, err := JournalEntryCacheKey(id)
	if err != nil {
		return core.JournalEntry{}, err
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.JournalEntry, error) {
		return s.base.Get(ctx, strings.TrimSpace(id))
	})
	if err != nil {
		return core.JournalEntry{}, err
	}
	entry.Metadata = copyAnyMap(entry.Metadata)
	return entry, nil
}

func (s *CachedJournalStore) List(ctx context.Context, filter core.JournalFilter) (core.JournalPage, error) {
	if s == nil || s.base == nil {
		return core.JournalPage{}, fmt.Errorf("sqlstore: cached journal store is not configured")
	}
	return s.base.List(ctx, filter)
}

package sqlstore

import "github.com/goliatone/go-rendezvous/core"

var (
	_ core.JournalSink   = (*JournalStore)(nil)
	_ core.JournalReader = (*JournalStore)(nil)
	_ core.JournalReader = (*CachedJournalStore)(nil)
)

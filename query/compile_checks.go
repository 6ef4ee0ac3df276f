package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-rendezvous/core"
)

var (
	_ gocmd.Querier[ListIntentsMessage, []IntentSummary]       = (*ListIntentsQuery)(nil)
	_ gocmd.Querier[DescribeIntentMessage, IntentDescription]  = (*DescribeIntentQuery)(nil)
	_ gocmd.Querier[ListJournalMessage, core.JournalPage]      = (*ListJournalQuery)(nil)
	_ gocmd.Querier[GetJournalEntryMessage, core.JournalEntry] = (*GetJournalEntryQuery)(nil)
)

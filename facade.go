package rendezvous

import (
	"fmt"

	rdvcommand "github.com/goliatone/go-rendezvous/command"
	"github.com/goliatone/go-rendezvous/core"
	rdvquery "github.com/goliatone/go-rendezvous/query"
)

type Commands struct {
	Invoke              *rdvcommand.InvokeCommand
	RegisterIntent      *rdvcommand.RegisterIntentCommand
	RegisterInterceptor *rdvcommand.RegisterInterceptorCommand
}

type Queries struct {
	ListIntents    *rdvquery.ListIntentsQuery
	DescribeIntent *rdvquery.DescribeIntentQuery
	ListJournal    *rdvquery.ListJournalQuery
	GetJournal     *rdvquery.GetJournalEntryQuery
}

// Facade exposes a dispatcher through go-command handlers.
type Facade struct {
	dispatcher *core.Dispatcher
	commands   Commands
	queries    Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	journalReader core.JournalReader
}

// WithJournalReader backs the journal queries. Without it they fail with a
// dependency error.
func WithJournalReader(reader core.JournalReader) FacadeOption {
	return func(options *facadeOptions) {
		options.journalReader = reader
	}
}

func NewFacade(dispatcher *core.Dispatcher, opts ...FacadeOption) (*Facade, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("rendezvous: dispatcher is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{dispatcher: dispatcher}
	facade.commands = Commands{
		Invoke:              rdvcommand.NewInvokeCommand(dispatcher),
		RegisterIntent:      rdvcommand.NewRegisterIntentCommand(dispatcher),
		RegisterInterceptor: rdvcommand.NewRegisterInterceptorCommand(dispatcher),
	}
	facade.queries = Queries{
		ListIntents:    rdvquery.NewListIntentsQuery(dispatcher),
		DescribeIntent: rdvquery.NewDescribeIntentQuery(dispatcher),
		ListJournal:    rdvquery.NewListJournalQuery(cfg.journalReader),
		GetJournal:     rdvquery.NewGetJournalEntryQuery(cfg.journalReader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Dispatcher() *core.Dispatcher {
	if f == nil {
		return nil
	}
	return f.dispatcher
}

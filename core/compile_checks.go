package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ IntentCatalog = (*HandlerRegistry)(nil)
	_ IntentCatalog = (*Dispatcher)(nil)
	_ StructMapper  = MapstructureMapper{}
	_ JournalSink   = JournalSinkFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-rendezvous/core"
)

var (
	_ gocmd.Commander[InvokeMessage]              = (*InvokeCommand)(nil)
	_ gocmd.Commander[RegisterIntentMessage]      = (*RegisterIntentCommand)(nil)
	_ gocmd.Commander[RegisterInterceptorMessage] = (*RegisterInterceptorCommand)(nil)
	_ Dispatcher                                  = (*core.Dispatcher)(nil)
)

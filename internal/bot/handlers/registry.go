package handlers

import (
	"context"

	"github.com/edgard/assistbots/internal/platform"
)

// HandlerFunc handles one inbound message on a connection.
type HandlerFunc func(ctx context.Context, conn platform.Conn, msg platform.Message)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	Command    platform.Command
	Handler    HandlerFunc
	Middleware []Middleware
}

// Wrapped returns the handler with its middleware applied, first middleware outermost.
func (r RegisteredHandler) Wrapped() HandlerFunc {
	return Chain(r.Handler, r.Middleware...)
}

// RegisterAllCommands returns the commands every instance answers locally,
// in the order they are advertised.
func RegisterAllCommands(deps HandlerDeps) []RegisteredHandler {
	recovered := Recover(deps.Logger)

	return []RegisteredHandler{
		{
			Command:    platform.Command{Name: "start", Description: "Start the bot"},
			Handler:    NewStartHandler(deps),
			Middleware: []Middleware{recovered},
		},
		{
			Command:    platform.Command{Name: "help", Description: "Show available commands"},
			Handler:    NewHelpHandler(deps),
			Middleware: []Middleware{recovered},
		},
		{
			Command:    platform.Command{Name: "reset", Description: "Start a new conversation"},
			Handler:    NewResetHandler(deps),
			Middleware: []Middleware{recovered},
		},
	}
}

// RegisterTextHandler returns the catch-all handler for non-command text.
func RegisterTextHandler(deps HandlerDeps) HandlerFunc {
	return Chain(NewTextHandler(deps), Recover(deps.Logger), Typing(deps.Logger))
}

// Commands lists the platform commands of the registered handlers.
func Commands(registered []RegisteredHandler) []platform.Command {
	cmds := make([]platform.Command, 0, len(registered))
	for _, r := range registered {
		cmds = append(cmds, r.Command)
	}
	return cmds
}

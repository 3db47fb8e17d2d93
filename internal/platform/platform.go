// Package platform defines the messaging-platform boundary used by bot
// instances: how a connection is opened, how inbound events reach the
// instance, and how replies go back out.
package platform

import "context"

// Message is one inbound text event.
type Message struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
}

// Conversation identifies one chat as seen by one bot bound to one
// assistant. Private chats share their ID across bots, so BotID is part of
// the identity: two bots never share a conversation.
type Conversation struct {
	BotID       int64
	AssistantID string
	ChatID      int64
}

// Command is a slash command an instance answers locally.
type Command struct {
	Name        string
	Description string
}

// Handler receives inbound events for one connection. Calls for a single
// connection are sequential and in arrival order.
type Handler interface {
	OnCommand(ctx context.Context, conn Conn, name string, msg Message)
	OnText(ctx context.Context, conn Conn, msg Message)
}

// Conn is a live platform connection owned by exactly one instance.
type Conn interface {
	// RegisterCommands routes the named commands to Handler.OnCommand and
	// advertises them on the platform.
	RegisterCommands(ctx context.Context, cmds []Command) error

	// Receive delivers inbound events to the Handler until ctx is done,
	// returning nil, or until the connection fails unrecoverably, returning
	// the failure. A connection is received from at most once.
	Receive(ctx context.Context) error

	Send(ctx context.Context, chatID int64, text string) error
	Typing(ctx context.Context, chatID int64) error

	// BotID is the platform's identifier of the connected bot account.
	BotID() int64
	Username() string
	Close() error
}

// Connector opens connections from credentials.
type Connector interface {
	Connect(ctx context.Context, credential string, h Handler) (Conn, error)
}

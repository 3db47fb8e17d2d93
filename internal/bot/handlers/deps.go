package handlers

import (
	"log/slog"

	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/dispatch"
	"github.com/edgard/assistbots/internal/platform"
)

// HandlerDeps provides dependencies for one instance's handlers.
type HandlerDeps struct {
	Logger      *slog.Logger
	Messages    config.MessagesConfig
	Dispatcher  dispatch.Dispatcher
	AssistantID string
}

// conversation identifies the chat as seen by the bot behind conn.
func (d HandlerDeps) conversation(conn platform.Conn, chatID int64) platform.Conversation {
	return platform.Conversation{BotID: conn.BotID(), AssistantID: d.AssistantID, ChatID: chatID}
}

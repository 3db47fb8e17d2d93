package handlers

import (
	"context"

	"github.com/edgard/assistbots/internal/platform"
)

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) HandlerFunc {
	return helpHandler{deps}.Handle
}

type helpHandler struct {
	deps HandlerDeps
}

func (h helpHandler) Handle(ctx context.Context, conn platform.Conn, msg platform.Message) {
	log := h.deps.Logger.With("handler", "help")
	log.InfoContext(ctx, "Handling /help command", "chat_id", msg.ChatID, "user_id", msg.UserID)

	if err := conn.Send(ctx, msg.ChatID, h.deps.Messages.Help); err != nil {
		log.ErrorContext(ctx, "Failed to send help message", "error", err, "chat_id", msg.ChatID)
		return
	}
	log.DebugContext(ctx, "Sent help message", "chat_id", msg.ChatID)
}

package handlers

import (
	"context"

	"github.com/edgard/assistbots/internal/platform"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler answers /start with the configured greeting.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, conn platform.Conn, msg platform.Message) {
	log := h.deps.Logger.With("handler", "start")
	log.InfoContext(ctx, "Handling /start command", "chat_id", msg.ChatID, "user_id", msg.UserID)

	if err := conn.Send(ctx, msg.ChatID, h.deps.Messages.Start); err != nil {
		log.ErrorContext(ctx, "Failed to send welcome message", "error", err, "chat_id", msg.ChatID)
		return
	}
	log.DebugContext(ctx, "Sent welcome message", "chat_id", msg.ChatID)
}

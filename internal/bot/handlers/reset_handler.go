package handlers

import (
	"context"

	"github.com/edgard/assistbots/internal/platform"
)

// NewResetHandler returns a handler for the /reset command.
func NewResetHandler(deps HandlerDeps) HandlerFunc {
	return resetHandler{deps}.Handle
}

// resetHandler makes the assistant forget the conversation with this bot.
type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) Handle(ctx context.Context, conn platform.Conn, msg platform.Message) {
	log := h.deps.Logger.With("handler", "reset")
	log.InfoContext(ctx, "Handling /reset command", "chat_id", msg.ChatID, "user_id", msg.UserID)

	reply := h.deps.Messages.Reset
	if err := h.deps.Dispatcher.Reset(ctx, h.deps.conversation(conn, msg.ChatID)); err != nil {
		log.ErrorContext(ctx, "Failed to reset conversation", "error", err, "chat_id", msg.ChatID)
		reply = h.deps.Messages.DispatchError
	}

	if err := conn.Send(ctx, msg.ChatID, reply); err != nil {
		log.ErrorContext(ctx, "Failed to send reset confirmation", "error", err, "chat_id", msg.ChatID)
	}
}

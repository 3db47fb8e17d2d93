package handlers

import (
	"context"
	"time"

	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
	"github.com/edgard/assistbots/internal/text"
)

// NewTextHandler returns the handler that forwards plain text to the
// instance's assistant and sends back its reply.
func NewTextHandler(deps HandlerDeps) HandlerFunc {
	return textHandler{deps}.Handle
}

type textHandler struct {
	deps HandlerDeps
}

func (h textHandler) Handle(ctx context.Context, conn platform.Conn, msg platform.Message) {
	log := h.deps.Logger.With("handler", "text", "chat_id", msg.ChatID, "user_id", msg.UserID)
	log.DebugContext(ctx, "Dispatching message", "text_preview", logger.Truncate(msg.Text, 50))

	start := time.Now()
	reply, err := h.deps.Dispatcher.Dispatch(ctx, h.deps.conversation(conn, msg.ChatID), msg.Text)
	if err == nil {
		reply = text.CleanReply(reply)
	}
	switch {
	case err != nil:
		log.ErrorContext(ctx, "Dispatch failed, sending fallback reply", "error", err, "duration", time.Since(start))
		reply = h.deps.Messages.DispatchError
	case reply == "":
		log.WarnContext(ctx, "Assistant reply was empty after cleaning, sending fallback reply", "duration", time.Since(start))
		reply = h.deps.Messages.DispatchError
	default:
		log.InfoContext(ctx, "Assistant replied", "duration", time.Since(start), "reply_length", len(reply))
	}

	if err := conn.Send(ctx, msg.ChatID, reply); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err)
	}
}

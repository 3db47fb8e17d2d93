// Package handlers contains the command and text handlers every bot
// instance registers, along with their registration logic and middleware.
package handlers

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/edgard/assistbots/internal/platform"
)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain applies middleware to h, the first one outermost.
func Chain(h HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Recover stops a panicking handler from taking the polling loop, and with
// it the whole process, down.
func Recover(log *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn platform.Conn, msg platform.Message) {
			defer func() {
				if r := recover(); r != nil {
					log.ErrorContext(ctx, "Handler panicked", "panic", r, "chat_id", msg.ChatID, "stack", string(debug.Stack()))
				}
			}()
			next(ctx, conn, msg)
		}
	}
}

// Typing shows the typing indicator in the chat before the handler runs.
// A failed indicator is logged and otherwise ignored.
func Typing(log *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn platform.Conn, msg platform.Message) {
			if err := conn.Typing(ctx, msg.ChatID); err != nil {
				log.WarnContext(ctx, "Failed to send typing action", "error", err, "chat_id", msg.ChatID)
			}
			next(ctx, conn, msg)
		}
	}
}

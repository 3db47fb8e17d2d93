// Package telegram implements the platform connector on top of the
// go-telegram/bot library. Each connection is one bot token with its own
// HTTP client, long-polling loop, and handler registry.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"

	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
)

// ErrRevoked is returned by Receive when Telegram rejects the token while
// polling, which happens when the token is revoked mid-session.
var ErrRevoked = errors.New("telegram rejected the bot token")

// Connector opens go-telegram/bot connections.
type Connector struct {
	log            *slog.Logger
	pollTimeout    time.Duration
	connectTimeout time.Duration
	opts           []bot.Option
}

// NewConnector creates a connector using the shared transport settings.
// Extra options are appended to every bot, which is how tests point the
// client at a fake server.
func NewConnector(log *slog.Logger, cfg config.TelegramConfig, opts ...bot.Option) *Connector {
	if log == nil {
		log = logger.Discard()
	}
	return &Connector{
		log:            log.With("component", "telegram"),
		pollTimeout:    cfg.PollTimeout,
		connectTimeout: cfg.ConnectTimeout,
		opts:           opts,
	}
}

// Connect creates a bot for the token and verifies it with getMe.
func (c *Connector) Connect(ctx context.Context, token string, h platform.Handler) (platform.Conn, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if h == nil {
		return nil, fmt.Errorf("telegram handler cannot be nil")
	}

	cn := &conn{
		handler:    h,
		httpClient: &http.Client{Timeout: c.pollTimeout + c.connectTimeout},
		log:        c.log.With("token_prefix", tokenPrefix(token)),
	}

	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(c.pollTimeout, cn.httpClient),
		bot.WithWorkers(1),
		bot.WithNotAsyncHandlers(),
		bot.WithDefaultHandler(cn.handleDefault),
		bot.WithErrorsHandler(cn.handleError),
		bot.WithMiddlewares(logger.Middleware(cn.log)),
	}
	opts = append(opts, c.opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	cn.bot = b

	connectCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	me, err := b.GetMe(connectCtx)
	if err != nil {
		cn.httpClient.CloseIdleConnections()
		return nil, fmt.Errorf("telegram getMe failed: %w", err)
	}
	cn.botID = me.ID
	cn.username = me.Username
	cn.log = cn.log.With("bot_username", me.Username)

	cn.log.Info("Telegram bot connected", "bot_id", me.ID)
	return cn, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}

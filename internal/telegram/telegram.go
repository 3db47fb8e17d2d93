package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbots/internal/platform"
)

// MaxMessageLength is Telegram's limit for one text message, in runes.
const MaxMessageLength = 4096

var errAlreadyReceived = errors.New("telegram connection already received from")

// conn is one live bot connection. It is owned by a single instance.
type conn struct {
	bot        *bot.Bot
	handler    platform.Handler
	httpClient *http.Client
	log        *slog.Logger
	botID      int64
	username   string

	mu       sync.Mutex
	abort    context.CancelCauseFunc
	received bool
	closed   bool
}

// RegisterCommands routes each command to the handler and publishes the
// list with setMyCommands.
func (c *conn) RegisterCommands(ctx context.Context, cmds []platform.Command) error {
	botCommands := make([]models.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		name := cmd.Name
		c.bot.RegisterHandler(bot.HandlerTypeMessageText, name, bot.MatchTypeCommandStartOnly,
			func(ctx context.Context, _ *bot.Bot, update *models.Update) {
				if update.Message == nil {
					return
				}
				c.handler.OnCommand(ctx, c, name, toMessage(update.Message))
			})
		botCommands = append(botCommands, models.BotCommand{Command: name, Description: cmd.Description})
		c.log.Debug("Registered command handler", "command", name)
	}

	if len(botCommands) == 0 {
		return nil
	}
	if _, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: botCommands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// Receive long-polls until ctx is done or the token is rejected.
func (c *conn) Receive(ctx context.Context) error {
	c.mu.Lock()
	if c.received {
		c.mu.Unlock()
		return errAlreadyReceived
	}
	c.received = true
	ctx, cancel := context.WithCancelCause(ctx)
	c.abort = cancel
	c.mu.Unlock()
	defer cancel(nil)

	c.log.Info("Telegram polling started")
	c.bot.Start(ctx)
	c.log.Info("Telegram polling stopped")

	if cause := context.Cause(ctx); cause != nil &&
		!errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return nil
}

func (c *conn) Send(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitText(text, MaxMessageLength) {
		if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

func (c *conn) BotID() int64 {
	return c.botID
}

func (c *conn) Username() string {
	return c.username
}

// Close releases the connection's idle HTTP connections. It is safe to call
// more than once.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.httpClient.CloseIdleConnections()
	return nil
}

// handleDefault receives every update no command handler matched. Plain
// text goes to the handler; unknown commands and non-text updates are
// ignored.
func (c *conn) handleDefault(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	if strings.HasPrefix(update.Message.Text, "/") {
		c.log.DebugContext(ctx, "Ignoring unknown command", "chat_id", update.Message.Chat.ID)
		return
	}
	c.handler.OnText(ctx, c, toMessage(update.Message))
}

// handleError is called by the library for transport errors. An
// unauthorized response means the token no longer works, so polling is
// aborted; anything else is retried by the library.
func (c *conn) handleError(err error) {
	if errors.Is(err, bot.ErrorUnauthorized) {
		c.log.Error("Telegram rejected the bot token, stopping polling", "error", err)
		c.mu.Lock()
		abort := c.abort
		c.mu.Unlock()
		if abort != nil {
			abort(fmt.Errorf("%w: %v", ErrRevoked, err))
		}
		return
	}
	c.log.Warn("Telegram transport error", "error", err)
}

func toMessage(m *models.Message) platform.Message {
	msg := platform.Message{
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
		Text:      m.Text,
	}
	if m.From != nil {
		msg.UserID = m.From.ID
	}
	return msg
}

// SplitText cuts text into chunks of at most limit runes, preferring to
// break after a newline.
func SplitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

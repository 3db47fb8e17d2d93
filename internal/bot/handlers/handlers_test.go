package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/assistbots/internal/bot/handlers"
	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    []string
	typing  int
	sendErr error
}

func (c *fakeConn) RegisterCommands(context.Context, []platform.Command) error { return nil }
func (c *fakeConn) Receive(context.Context) error                              { return nil }
func (c *fakeConn) BotID() int64                                               { return 100 }
func (c *fakeConn) Username() string                                           { return "test_bot" }
func (c *fakeConn) Close() error                                               { return nil }

func (c *fakeConn) Send(_ context.Context, _ int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return c.sendErr
}

func (c *fakeConn) Typing(context.Context, int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing++
	return nil
}

type fakeDispatcher struct {
	reply    string
	err      error
	resetErr error
	calls    []string
	resets   []platform.Conversation
	panics   bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, conv platform.Conversation, text string) (string, error) {
	if d.panics {
		panic("boom")
	}
	d.calls = append(d.calls, fmt.Sprintf("%d/%s/%d:%s", conv.BotID, conv.AssistantID, conv.ChatID, text))
	return d.reply, d.err
}

func (d *fakeDispatcher) Reset(_ context.Context, conv platform.Conversation) error {
	d.resets = append(d.resets, conv)
	return d.resetErr
}

func newDeps(d *fakeDispatcher) handlers.HandlerDeps {
	return handlers.HandlerDeps{
		Logger:      logger.Discard(),
		Messages:    config.DefaultMessages,
		Dispatcher:  d,
		AssistantID: "asst_1",
	}
}

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()

	registered := handlers.RegisterAllCommands(newDeps(&fakeDispatcher{}))
	names := make([]string, 0, len(registered))
	for _, cmd := range handlers.Commands(registered) {
		names = append(names, cmd.Name)
		assert.NotEmpty(t, cmd.Description)
	}
	assert.Equal(t, []string{"start", "help", "reset"}, names)
}

func TestCommandReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command    string
		dispatcher *fakeDispatcher
		want       string
		wantResets []platform.Conversation
	}{
		{command: "start", dispatcher: &fakeDispatcher{}, want: config.DefaultMessages.Start},
		{command: "help", dispatcher: &fakeDispatcher{}, want: config.DefaultMessages.Help},
		{command: "reset", dispatcher: &fakeDispatcher{}, want: config.DefaultMessages.Reset, wantResets: []platform.Conversation{{BotID: 100, AssistantID: "asst_1", ChatID: 42}}},
		{command: "reset", dispatcher: &fakeDispatcher{resetErr: errors.New("db down")}, want: config.DefaultMessages.DispatchError, wantResets: []platform.Conversation{{BotID: 100, AssistantID: "asst_1", ChatID: 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			t.Parallel()

			var handler handlers.HandlerFunc
			for _, r := range handlers.RegisterAllCommands(newDeps(tt.dispatcher)) {
				if r.Command.Name == tt.command {
					handler = r.Wrapped()
				}
			}
			require.NotNil(t, handler)

			conn := &fakeConn{}
			handler(context.Background(), conn, platform.Message{ChatID: 42, Text: "/" + tt.command})

			assert.Equal(t, []string{tt.want}, conn.sent)
			assert.Equal(t, tt.wantResets, tt.dispatcher.resets)
			assert.Empty(t, tt.dispatcher.calls, "commands never reach the assistant")
		})
	}
}

func TestTextHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		dispatcher *fakeDispatcher
		want       []string
	}{
		{name: "reply", dispatcher: &fakeDispatcher{reply: "4"}, want: []string{"4"}},
		{name: "reply is cleaned", dispatcher: &fakeDispatcher{reply: "  It is 4【1:0†notes.txt】\n\n\n\nDone "}, want: []string{"It is 4\n\nDone"}},
		{name: "blank reply sends fallback", dispatcher: &fakeDispatcher{reply: " \u200B "}, want: []string{config.DefaultMessages.DispatchError}},
		{name: "dispatch error sends fallback", dispatcher: &fakeDispatcher{err: errors.New("timeout")}, want: []string{config.DefaultMessages.DispatchError}},
		{name: "panic is recovered", dispatcher: &fakeDispatcher{panics: true}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := &fakeConn{}
			handler := handlers.RegisterTextHandler(newDeps(tt.dispatcher))
			assert.NotPanics(t, func() {
				handler(context.Background(), conn, platform.Message{ChatID: 42, Text: "2+2?"})
			})

			assert.Equal(t, tt.want, conn.sent)
			assert.Equal(t, 1, conn.typing, "typing is shown before dispatch")
			if !tt.dispatcher.panics {
				assert.Equal(t, []string{"100/asst_1/42:2+2?"}, tt.dispatcher.calls, "the conversation carries the bot identity")
			}
		})
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) handlers.Middleware {
		return func(next handlers.HandlerFunc) handlers.HandlerFunc {
			return func(ctx context.Context, conn platform.Conn, msg platform.Message) {
				order = append(order, name)
				next(ctx, conn, msg)
			}
		}
	}

	h := handlers.Chain(func(context.Context, platform.Conn, platform.Message) {
		order = append(order, "handler")
	}, mark("outer"), mark("inner"))
	h(context.Background(), &fakeConn{}, platform.Message{})

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

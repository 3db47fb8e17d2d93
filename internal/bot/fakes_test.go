package bot_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/edgard/assistbots/internal/platform"
)

// fakeConnector hands out fakeConns and fails tokens listed in reject.
// Each distinct token is a distinct bot account.
type fakeConnector struct {
	reject map[string]error

	mu      sync.Mutex
	conns   map[string]*fakeConn
	botIDs  map[string]int64
	holds   map[string]chan struct{}
	waiting chan string
	order   []string
}

func newFakeConnector(reject ...string) *fakeConnector {
	c := &fakeConnector{
		reject:  map[string]error{},
		conns:   map[string]*fakeConn{},
		botIDs:  map[string]int64{},
		holds:   map[string]chan struct{}{},
		waiting: make(chan string, 8),
	}
	for _, tok := range reject {
		c.reject[tok] = fmt.Errorf("401 unauthorized for %s", tok)
	}
	return c
}

// hold makes Connect for token block until the returned channel is closed
// or the connect context ends. The token is sent on c.waiting once blocked.
func (c *fakeConnector) hold(token string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	release := make(chan struct{})
	c.holds[token] = release
	return release
}

func (c *fakeConnector) Connect(ctx context.Context, token string, h platform.Handler) (platform.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	release := c.holds[token]
	c.mu.Unlock()
	if release != nil {
		c.waiting <- token
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = append(c.order, token)
	if err := c.reject[token]; err != nil {
		return nil, err
	}
	botID, ok := c.botIDs[token]
	if !ok {
		botID = int64(1000 + len(c.botIDs))
		c.botIDs[token] = botID
	}
	conn := &fakeConn{
		token:   token,
		botID:   botID,
		handler: h,
		inbox:   make(chan platform.Message),
		fail:    make(chan error, 1),
		polling: make(chan struct{}),
	}
	c.conns[token] = conn
	return conn, nil
}

func (c *fakeConnector) conn(token string) *fakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[token]
}

func (c *fakeConnector) connected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// fakeConn delivers messages pushed into inbox to its handler, one at a
// time, from inside Receive.
type fakeConn struct {
	token   string
	botID   int64
	handler platform.Handler
	inbox   chan platform.Message
	fail    chan error
	polling chan struct{}

	commands []platform.Command
	closes   atomic.Int32

	mu   sync.Mutex
	sent []string
}

func (c *fakeConn) RegisterCommands(_ context.Context, cmds []platform.Command) error {
	c.commands = cmds
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) error {
	close(c.polling)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.fail:
			return err
		case msg := <-c.inbox:
			if len(msg.Text) > 0 && msg.Text[0] == '/' {
				c.handler.OnCommand(ctx, c, msg.Text[1:], msg)
			} else {
				c.handler.OnText(ctx, c, msg)
			}
		}
	}
}

func (c *fakeConn) Send(_ context.Context, chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, fmt.Sprintf("%d:%s", chatID, text))
	return nil
}

func (c *fakeConn) Typing(context.Context, int64) error { return nil }
func (c *fakeConn) BotID() int64                        { return c.botID }
func (c *fakeConn) Username() string                    { return c.token + "_bot" }

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeConn) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// fakeDispatcher echoes text and can be told to fail for an assistant.
type fakeDispatcher struct {
	failFor string
	block   chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	calls []string
	convs []platform.Conversation
}

var errAssistantDown = errors.New("assistant down")

func (d *fakeDispatcher) Dispatch(ctx context.Context, conv platform.Conversation, text string) (string, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	d.mu.Lock()
	d.calls = append(d.calls, conv.AssistantID+":"+text)
	d.convs = append(d.convs, conv)
	d.mu.Unlock()
	if conv.AssistantID == d.failFor {
		return "", errAssistantDown
	}
	return "re: " + text, nil
}

func (d *fakeDispatcher) Reset(context.Context, platform.Conversation) error { return nil }

func (d *fakeDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDispatcher) conversations() []platform.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.Conversation(nil), d.convs...)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgard/assistbots/internal/bot/handlers"
	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/dispatch"
	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
)

// ErrInvalidState is returned when a lifecycle method is called in the
// wrong state, such as polling an instance that was never initialized.
var ErrInvalidState = errors.New("invalid instance state")

// InstanceDeps are the collaborators shared by every instance.
type InstanceDeps struct {
	Logger     *slog.Logger
	Connector  platform.Connector
	Dispatcher dispatch.Dispatcher
	Messages   config.MessagesConfig
	// HandlerTimeout bounds one handler call, including its assistant round trip.
	HandlerTimeout time.Duration
}

// Instance is one Telegram bot bound to one assistant identity.
type Instance struct {
	index          int
	pair           config.InstancePair
	connector      platform.Connector
	log            *slog.Logger
	commands       []handlers.RegisteredHandler
	byName         map[string]handlers.HandlerFunc
	text           handlers.HandlerFunc
	handlerTimeout time.Duration

	mu            sync.Mutex
	state         RunState
	conn          platform.Conn
	cancelPolling context.CancelFunc
	stopRequested bool
	connecting    bool
	polled        bool
	err           error
	done          chan struct{}
}

// NewInstance creates an instance in StateCreated for the pair at index.
func NewInstance(index int, pair config.InstancePair, deps InstanceDeps) *Instance {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "instance", "instance", index, "assistant_id", pair.AssistantID)

	hDeps := handlers.HandlerDeps{
		Logger:      log,
		Messages:    deps.Messages,
		Dispatcher:  deps.Dispatcher,
		AssistantID: pair.AssistantID,
	}
	commands := handlers.RegisterAllCommands(hDeps)
	byName := make(map[string]handlers.HandlerFunc, len(commands))
	for _, c := range commands {
		byName[c.Command.Name] = c.Wrapped()
	}

	timeout := deps.HandlerTimeout
	if timeout <= 0 {
		timeout = config.DefaultAssistantTimeout
	}

	return &Instance{
		index:          index,
		pair:           pair,
		connector:      deps.Connector,
		log:            log,
		commands:       commands,
		byName:         byName,
		text:           handlers.RegisterTextHandler(hDeps),
		handlerTimeout: timeout,
		state:          StateCreated,
		done:           make(chan struct{}),
	}
}

func (i *Instance) Index() int          { return i.index }
func (i *Instance) AssistantID() string { return i.pair.AssistantID }

// State returns the current lifecycle state.
func (i *Instance) State() RunState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Err returns the failure that stopped the instance, or nil.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Done is closed once the instance reaches StateStopped.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Initialize connects to Telegram and registers the command and text
// handlers. On failure the instance is stopped and a ConnectionError is
// returned. It is not retried. An instance stopped before it began
// connecting returns nil without connecting.
func (i *Instance) Initialize(ctx context.Context) error {
	i.mu.Lock()
	if i.stopRequested && i.state == StateStopped && !i.connecting {
		i.mu.Unlock()
		i.log.DebugContext(ctx, "Stop requested before initialization, not connecting")
		return nil
	}
	if i.state != StateCreated {
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("%w: initialize in state %s", ErrInvalidState, state)
	}
	i.connecting = true
	i.setStateLocked(StateInitializing)
	i.mu.Unlock()

	conn, err := i.connector.Connect(ctx, i.pair.Token, i)
	if err != nil {
		connErr := errs.NewConnectionError(i.index, "failed to connect", err)
		i.log.ErrorContext(ctx, "Instance failed to connect", "error", err)
		i.finish(connErr)
		return connErr
	}

	if err := conn.RegisterCommands(ctx, handlers.Commands(i.commands)); err != nil {
		connErr := errs.NewConnectionError(i.index, "failed to register commands", err)
		i.log.ErrorContext(ctx, "Instance failed to register commands", "error", err)
		i.closeConn(conn)
		i.finish(connErr)
		return connErr
	}

	i.mu.Lock()
	if i.stopRequested {
		i.mu.Unlock()
		i.log.InfoContext(ctx, "Stop requested during initialization, releasing connection")
		i.closeConn(conn)
		i.finish(nil)
		return nil
	}
	i.conn = conn
	i.mu.Unlock()

	i.log.InfoContext(ctx, "Instance initialized", "bot_username", conn.Username())
	return nil
}

// BeginPolling receives updates until the instance is stopped. It returns
// nil after RequestStop or ctx cancellation and a ConnectionError when the
// connection fails for good.
func (i *Instance) BeginPolling(ctx context.Context) error {
	i.mu.Lock()
	if i.stopRequested && i.state == StateStopped && i.err == nil && !i.polled {
		i.mu.Unlock()
		return nil
	}
	if i.state != StateInitializing || i.conn == nil {
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("%w: begin polling in state %s", ErrInvalidState, state)
	}
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	i.cancelPolling = cancel
	i.polled = true
	i.setStateLocked(StatePolling)
	conn := i.conn
	i.mu.Unlock()

	i.log.InfoContext(ctx, "Instance polling")
	recvErr := conn.Receive(pollCtx)
	i.closeConn(conn)

	i.mu.Lock()
	requested := i.stopRequested
	i.mu.Unlock()

	switch {
	case recvErr != nil && !requested:
		connErr := errs.NewConnectionError(i.index, "polling failed", recvErr)
		i.log.ErrorContext(ctx, "Instance connection lost", "error", recvErr)
		i.finish(connErr)
		return connErr
	case !requested && ctx.Err() == nil:
		connErr := errs.NewConnectionError(i.index, "polling stopped unexpectedly", nil)
		i.log.WarnContext(ctx, "Instance polling stopped without a stop request")
		i.finish(connErr)
		return connErr
	}

	i.mu.Lock()
	i.setStateLocked(StateStopping)
	i.mu.Unlock()
	i.finish(nil)
	i.log.InfoContext(ctx, "Instance stopped")
	return nil
}

// RequestStop asks the instance to stop. It does not wait; use Done. Calls
// after the first are no-ops.
func (i *Instance) RequestStop() {
	i.mu.Lock()
	if i.stopRequested || i.state == StateStopped {
		i.mu.Unlock()
		return
	}
	i.stopRequested = true

	switch i.state {
	case StateCreated:
		i.finishLocked(nil)
		i.mu.Unlock()
	case StateInitializing:
		// Without a connection, Initialize is still connecting and will
		// release it when it returns.
		conn := i.conn
		if conn != nil {
			i.finishLocked(nil)
		}
		i.mu.Unlock()
		if conn != nil {
			i.closeConn(conn)
		}
	case StatePolling:
		i.setStateLocked(StateStopping)
		cancel := i.cancelPolling
		i.mu.Unlock()
		i.log.Info("Stop requested")
		cancel()
	default:
		i.mu.Unlock()
	}
}

// OnCommand implements platform.Handler.
func (i *Instance) OnCommand(ctx context.Context, conn platform.Conn, name string, msg platform.Message) {
	h, ok := i.byName[name]
	if !ok {
		i.log.DebugContext(ctx, "Ignoring unregistered command", "command", name)
		return
	}
	if i.dropping(ctx) {
		i.log.DebugContext(ctx, "Dropping command received after stop", "command", name, "chat_id", msg.ChatID)
		return
	}

	hctx, cancel := i.handlerContext(ctx)
	defer cancel()
	h(hctx, conn, msg)
}

// OnText implements platform.Handler.
func (i *Instance) OnText(ctx context.Context, conn platform.Conn, msg platform.Message) {
	if i.dropping(ctx) {
		i.log.DebugContext(ctx, "Dropping message received after stop", "chat_id", msg.ChatID)
		return
	}

	hctx, cancel := i.handlerContext(ctx)
	defer cancel()
	i.text(hctx, conn, msg)
}

// handlerContext detaches a handler from the polling context, so a stop
// lets the current reply finish instead of cutting it off.
func (i *Instance) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), i.handlerTimeout)
}

func (i *Instance) dropping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopRequested
}

// setStateLocked moves forward to s. Backward moves are ignored.
func (i *Instance) setStateLocked(s RunState) {
	if s <= i.state {
		return
	}
	i.log.Debug("Instance state changed", "from", i.state.String(), "to", s.String())
	i.state = s
}

// finish moves the instance to StateStopped with err and closes Done.
// Only the first call has any effect.
func (i *Instance) finish(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.finishLocked(err)
}

func (i *Instance) finishLocked(err error) {
	if i.state == StateStopped {
		return
	}
	i.setStateLocked(StateStopped)
	i.err = err
	i.conn = nil
	close(i.done)
}

func (i *Instance) closeConn(conn platform.Conn) {
	if err := conn.Close(); err != nil {
		i.log.Warn("Failed to close connection", "error", err)
	}
}

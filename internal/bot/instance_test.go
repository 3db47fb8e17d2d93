package bot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/assistbots/internal/bot"
	"github.com/edgard/assistbots/internal/config"
	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
)

const waitFor = 5 * time.Second

func newDeps(connector platform.Connector, d *fakeDispatcher) bot.InstanceDeps {
	return bot.InstanceDeps{
		Logger:         logger.Discard(),
		Connector:      connector,
		Dispatcher:     d,
		Messages:       config.DefaultMessages,
		HandlerTimeout: waitFor,
	}
}

func waitDone(t *testing.T, inst *bot.Instance) {
	t.Helper()
	select {
	case <-inst.Done():
	case <-time.After(waitFor):
		t.Fatalf("instance %d did not stop, state %s", inst.Index(), inst.State())
	}
}

func startPolling(t *testing.T, inst *bot.Instance, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- inst.BeginPolling(ctx) }()
	require.Eventually(t, func() bool { return inst.State() == bot.StatePolling }, waitFor, time.Millisecond)
	return done
}

func TestRunStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state bot.RunState
		want  string
	}{
		{bot.StateCreated, "created"},
		{bot.StateInitializing, "initializing"},
		{bot.StatePolling, "polling"},
		{bot.StateStopping, "stopping"},
		{bot.StateStopped, "stopped"},
		{bot.RunState(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestInstanceLifecycle(t *testing.T) {
	t.Parallel()

	connector := newFakeConnector()
	inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, &fakeDispatcher{}))
	assert.Equal(t, bot.StateCreated, inst.State())
	assert.Equal(t, "asst1", inst.AssistantID())

	require.NoError(t, inst.Initialize(context.Background()))
	assert.Equal(t, bot.StateInitializing, inst.State())

	conn := connector.conn("tokA")
	require.NotNil(t, conn)
	names := make([]string, 0, len(conn.commands))
	for _, c := range conn.commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"start", "help", "reset"}, names)

	polled := startPolling(t, inst, context.Background())

	inst.RequestStop()
	inst.RequestStop()

	waitDone(t, inst)
	require.NoError(t, <-polled)
	assert.Equal(t, bot.StateStopped, inst.State())
	assert.NoError(t, inst.Err())
	assert.Equal(t, int32(1), conn.closes.Load(), "connection released exactly once")

	err := inst.BeginPolling(context.Background())
	assert.ErrorIs(t, err, bot.ErrInvalidState, "a stopped instance never polls again")
}

func TestInstanceConnectFailure(t *testing.T) {
	t.Parallel()

	inst := bot.NewInstance(3, config.InstancePair{Token: "badtok", AssistantID: "asst1"}, newDeps(newFakeConnector("badtok"), &fakeDispatcher{}))

	err := inst.Initialize(context.Background())
	require.Error(t, err)

	var connErr *errs.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 3, connErr.Instance)

	waitDone(t, inst)
	assert.Equal(t, bot.StateStopped, inst.State())
	assert.Equal(t, err, inst.Err())
	assert.ErrorIs(t, inst.BeginPolling(context.Background()), bot.ErrInvalidState)
}

func TestInstanceConnectionLostWhilePolling(t *testing.T) {
	t.Parallel()

	connector := newFakeConnector()
	inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, &fakeDispatcher{}))
	require.NoError(t, inst.Initialize(context.Background()))
	polled := startPolling(t, inst, context.Background())

	connector.conn("tokA").fail <- errors.New("token revoked")

	err := <-polled
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))
	waitDone(t, inst)
	assert.True(t, errs.IsConnection(inst.Err()))
}

func TestInstanceParentCancel(t *testing.T) {
	t.Parallel()

	connector := newFakeConnector()
	inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, &fakeDispatcher{}))
	require.NoError(t, inst.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	polled := startPolling(t, inst, ctx)
	cancel()

	require.NoError(t, <-polled)
	waitDone(t, inst)
	assert.NoError(t, inst.Err())
}

func TestInstanceStopBeforePolling(t *testing.T) {
	t.Parallel()

	t.Run("after initialize", func(t *testing.T) {
		t.Parallel()
		connector := newFakeConnector()
		inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, &fakeDispatcher{}))
		require.NoError(t, inst.Initialize(context.Background()))

		inst.RequestStop()
		waitDone(t, inst)
		assert.Equal(t, int32(1), connector.conn("tokA").closes.Load())
		assert.NoError(t, inst.BeginPolling(context.Background()), "polling a stopped-on-request instance returns at once")
	})

	t.Run("before initialize", func(t *testing.T) {
		t.Parallel()
		connector := newFakeConnector()
		inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, &fakeDispatcher{}))

		inst.RequestStop()
		waitDone(t, inst)
		assert.NoError(t, inst.Initialize(context.Background()), "a stopped instance does not connect")
		assert.NoError(t, inst.BeginPolling(context.Background()))
		assert.Empty(t, connector.connected())
		assert.Equal(t, bot.StateStopped, inst.State())
		assert.NoError(t, inst.Err())
	})

	t.Run("initialize twice", func(t *testing.T) {
		t.Parallel()
		inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(newFakeConnector(), &fakeDispatcher{}))
		require.NoError(t, inst.Initialize(context.Background()))

		inst.RequestStop()
		waitDone(t, inst)
		assert.ErrorIs(t, inst.Initialize(context.Background()), bot.ErrInvalidState, "a released instance never reconnects")
	})
}

func TestInstanceRelaysReplies(t *testing.T) {
	t.Parallel()

	connector := newFakeConnector()
	dispatcher := &fakeDispatcher{}
	inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, dispatcher))
	require.NoError(t, inst.Initialize(context.Background()))
	polled := startPolling(t, inst, context.Background())
	conn := connector.conn("tokA")

	conn.inbox <- platform.Message{ChatID: 5, Text: "/help"}
	conn.inbox <- platform.Message{ChatID: 5, Text: "hello"}
	conn.inbox <- platform.Message{ChatID: 5, Text: "/nope"}

	require.Eventually(t, func() bool { return len(conn.sentMessages()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"5:" + config.DefaultMessages.Help, "5:re: hello"}, conn.sentMessages())
	assert.Equal(t, []string{"asst1:hello"}, dispatcher.dispatched())

	inst.RequestStop()
	require.NoError(t, <-polled)
}

func TestInstanceFinishesInFlightDispatchOnStop(t *testing.T) {
	t.Parallel()

	connector := newFakeConnector()
	dispatcher := &fakeDispatcher{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, dispatcher))
	require.NoError(t, inst.Initialize(context.Background()))
	polled := startPolling(t, inst, context.Background())
	conn := connector.conn("tokA")

	conn.inbox <- platform.Message{ChatID: 9, Text: "slow question"}
	<-dispatcher.entered

	inst.RequestStop()
	assert.Equal(t, bot.StateStopping, inst.State())

	select {
	case <-inst.Done():
		t.Fatal("instance stopped before the in-flight reply was sent")
	case <-time.After(20 * time.Millisecond):
	}

	close(dispatcher.block)
	require.NoError(t, <-polled)
	assert.Equal(t, []string{"9:re: slow question"}, conn.sentMessages())
}

func TestInstanceDropsMessagesAfterStop(t *testing.T) {
	t.Parallel()

	connector := newFakeConnector()
	dispatcher := &fakeDispatcher{}
	inst := bot.NewInstance(0, config.InstancePair{Token: "tokA", AssistantID: "asst1"}, newDeps(connector, dispatcher))
	require.NoError(t, inst.Initialize(context.Background()))
	conn := connector.conn("tokA")

	inst.RequestStop()
	inst.OnText(context.Background(), conn, platform.Message{ChatID: 1, Text: "late"})
	inst.OnCommand(context.Background(), conn, "start", platform.Message{ChatID: 1, Text: "/start"})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	inst.OnText(cancelled, conn, platform.Message{ChatID: 1, Text: "later"})

	assert.Empty(t, dispatcher.dispatched())
	assert.Empty(t, conn.sentMessages())
}

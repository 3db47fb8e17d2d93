package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/dispatch"
	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
)

type flakyDispatcher struct {
	mu      sync.Mutex
	failFor map[string]bool
	calls   map[string]int
	resets  int
}

func (f *flakyDispatcher) Dispatch(_ context.Context, conv platform.Conversation, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[conv.AssistantID]++
	if f.failFor[conv.AssistantID] {
		return "", errs.NewDispatchError(conv.AssistantID, "run failed", errors.New("upstream 500"))
	}
	return "re: " + text, nil
}

func (f *flakyDispatcher) Reset(context.Context, platform.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *flakyDispatcher) callsFor(assistantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[assistantID]
}

func TestCircuitBreakerIsPerAssistant(t *testing.T) {
	t.Parallel()

	next := &flakyDispatcher{failFor: map[string]bool{"asst1": true}, calls: map[string]int{}}
	d := dispatch.WithCircuitBreaker(next, 2, time.Hour, logger.Discard())
	ctx := context.Background()
	asst1 := platform.Conversation{BotID: 100, AssistantID: "asst1", ChatID: 1}
	asst2 := platform.Conversation{BotID: 200, AssistantID: "asst2", ChatID: 1}

	for range 2 {
		_, err := d.Dispatch(ctx, asst1, "hi")
		require.Error(t, err)
	}

	_, err := d.Dispatch(ctx, asst1, "hi")
	require.Error(t, err)
	assert.True(t, errs.IsDispatch(err), "an open breaker still reports a dispatch error")
	assert.Equal(t, 2, next.callsFor("asst1"), "an open breaker does not reach the assistant")

	reply, err := d.Dispatch(ctx, asst2, "hi")
	require.NoError(t, err)
	assert.Equal(t, "re: hi", reply)

	require.NoError(t, d.Reset(ctx, asst1), "reset bypasses the breaker")
	assert.Equal(t, 1, next.resets)

	assert.Same(t, next, dispatch.Unwrap(d))
	assert.Same(t, next, dispatch.Unwrap(next))
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.AssistantConfig
		wantErr bool
	}{
		{name: "unknown provider", cfg: config.AssistantConfig{Provider: "claude", APIKey: "k"}, wantErr: true},
		{name: "openai without key", cfg: config.AssistantConfig{Provider: config.ProviderOpenAI}, wantErr: true},
		{name: "gemini without key", cfg: config.AssistantConfig{Provider: config.ProviderGemini}, wantErr: true},
		{name: "gemini with breaker", cfg: config.AssistantConfig{Provider: config.ProviderGemini, APIKey: "k", CircuitMaxFailures: 3, CircuitOpenTimeout: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := dispatch.New(context.Background(), tt.cfg, nil, nil)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, d)
		})
	}
}

package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/platform"
	"github.com/edgard/assistbots/internal/resilience"
)

// breakerDispatcher keeps one circuit breaker per assistant so a failing
// assistant answers with an error at once without slowing down the others.
type breakerDispatcher struct {
	next        Dispatcher
	maxFailures uint32
	openTimeout time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// WithCircuitBreaker wraps next with per-assistant circuit breakers.
func WithCircuitBreaker(next Dispatcher, maxFailures int, openTimeout time.Duration, log *slog.Logger) Dispatcher {
	return &breakerDispatcher{
		next:        next,
		maxFailures: uint32(maxFailures),
		openTimeout: openTimeout,
		log:         log,
		breakers:    make(map[string]*resilience.CircuitBreaker),
	}
}

func (d *breakerDispatcher) breaker(assistantID string) *resilience.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[assistantID]
	if !ok {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        assistantID,
			MaxFailures: d.maxFailures,
			OpenTimeout: d.openTimeout,
			Logger:      d.log,
		})
		d.breakers[assistantID] = cb
	}
	return cb
}

func (d *breakerDispatcher) Dispatch(ctx context.Context, conv platform.Conversation, text string) (string, error) {
	var reply string
	err := d.breaker(conv.AssistantID).Execute(func() error {
		var err error
		reply, err = d.next.Dispatch(ctx, conv, text)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", errs.NewDispatchError(conv.AssistantID, "assistant temporarily unavailable", err)
	}
	return reply, err
}

func (d *breakerDispatcher) Reset(ctx context.Context, conv platform.Conversation) error {
	return d.next.Reset(ctx, conv)
}

func (d *breakerDispatcher) Unwrap() Dispatcher {
	return d.next
}

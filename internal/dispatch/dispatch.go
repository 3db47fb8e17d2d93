// Package dispatch defines how an instance hands a user message to its
// remote assistant and selects the configured provider.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/database"
	"github.com/edgard/assistbots/internal/gemini"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/openai"
	"github.com/edgard/assistbots/internal/platform"
)

// Dispatcher forwards user text to a remote assistant and returns its reply.
// Implementations are shared by every instance and must be safe for
// concurrent use. State is kept per conversation, never per assistant
// alone. Failures are *errors.DispatchError.
type Dispatcher interface {
	Dispatch(ctx context.Context, conv platform.Conversation, text string) (string, error)

	// Reset forgets any state kept for the conversation.
	Reset(ctx context.Context, conv platform.Conversation) error
}

// Unwrap returns the provider dispatcher under any decorators added by New.
func Unwrap(d Dispatcher) Dispatcher {
	for {
		w, ok := d.(interface{ Unwrap() Dispatcher })
		if !ok {
			return d
		}
		d = w.Unwrap()
	}
}

// New builds the dispatcher for cfg.Provider, guarded by per-assistant
// circuit breakers when cfg.CircuitMaxFailures is set.
func New(ctx context.Context, cfg config.AssistantConfig, store database.Store, log *slog.Logger) (Dispatcher, error) {
	if log == nil {
		log = logger.Discard()
	}

	var (
		d   Dispatcher
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		d, err = openai.New(cfg, store, log)
	case config.ProviderGemini:
		d, err = gemini.New(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown assistant provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CircuitMaxFailures > 0 {
		d = WithCircuitBreaker(d, cfg.CircuitMaxFailures, cfg.CircuitOpenTimeout, log.With("component", "circuit_breaker"))
	}
	return d, nil
}

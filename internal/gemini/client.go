// Package gemini dispatches chat messages to Google's Gemini API. The
// instance's assistant identity is used as the model name, so different
// instances can talk to different Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/assistbots/internal/config"
	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
)

// ErrEmptyResponse is returned when Gemini answers without usable text.
var ErrEmptyResponse = errors.New("gemini returned no text")

// generator is the part of genai.Models used by Dispatcher.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Dispatcher sends each message as a single-turn Gemini request.
type Dispatcher struct {
	models        generator
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	maxRetries    int
	retryDelay    time.Duration
}

// New creates a Gemini dispatcher from the assistant settings.
func New(ctx context.Context, cfg config.AssistantConfig, log *slog.Logger) (*Dispatcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gi, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newDispatcher(gi.Models, cfg, log), nil
}

func newDispatcher(models generator, cfg config.AssistantConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}

	contentConfig := &genai.GenerateContentConfig{}
	if cfg.Temperature != nil {
		temperature := *cfg.Temperature
		contentConfig.Temperature = &temperature
	}
	if cfg.Instruction != "" {
		contentConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.Instruction}}}
	}

	d := &Dispatcher{
		models:        models,
		log:           log.With("component", "gemini_dispatcher"),
		contentConfig: contentConfig,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
	}
	d.log.Info("Gemini dispatcher initialized", "max_retries", d.maxRetries)
	return d
}

// Dispatch asks the model named by the conversation's assistant to answer text.
func (d *Dispatcher) Dispatch(ctx context.Context, conv platform.Conversation, text string) (string, error) {
	assistantID := conv.AssistantID
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.NewDispatchError(assistantID, "cannot dispatch", errors.New("user message is empty"))
	}

	log := d.log.With("model", assistantID, "bot_id", conv.BotID, "chat_id", conv.ChatID)
	log.DebugContext(ctx, "Generating reply")

	resp, err := d.generateContentWithRetries(ctx, assistantID, genai.Text(text))
	if err != nil {
		return "", errs.NewDispatchError(assistantID, "gemini API call failed", err)
	}

	reply, err := d.extractText(ctx, resp)
	if err != nil {
		return "", errs.NewDispatchError(assistantID, "unusable gemini response", err)
	}
	return reply, nil
}

// Reset is a no-op: Gemini requests carry no conversation state.
func (d *Dispatcher) Reset(context.Context, platform.Conversation) error {
	return nil
}

func (d *Dispatcher) generateContentWithRetries(ctx context.Context, model string, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	for i := 0; ; i++ {
		resp, err := d.models.GenerateContent(ctx, model, contents, d.contentConfig)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		if !errors.As(err, &apiErr) || (apiErr.Code != http.StatusInternalServerError && apiErr.Code != http.StatusServiceUnavailable) {
			d.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
			return nil, err
		}
		if i >= d.maxRetries {
			d.log.ErrorContext(ctx, "Gemini API call failed after max retries", "code", apiErr.Code, "error", err)
			return nil, fmt.Errorf("gave up after %d retries: %w", d.maxRetries, err)
		}

		d.log.InfoContext(ctx, "Retrying Gemini API call", "attempt", i+1, "delay", d.retryDelay, "code", apiErr.Code)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
}

func (d *Dispatcher) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := string(resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		d.log.WarnContext(ctx, "Gemini request blocked", "reason", reason)
		return "", fmt.Errorf("blocked by safety filter: %s", reason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			return "", fmt.Errorf("%w (finish reason %s)", ErrEmptyResponse, resp.Candidates[0].FinishReason)
		}
		return "", ErrEmptyResponse
	}
	return text, nil
}

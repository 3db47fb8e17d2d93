package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/database"
	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/platform"
)

// Dispatcher runs user messages through OpenAI Assistants.
type Dispatcher struct {
	api          assistantsAPI
	store        threadStore
	log          *slog.Logger
	pollInterval time.Duration
	instruction  string
	temperature  *float32
}

// New creates an Assistants dispatcher from the assistant settings. The
// store keeps the chat to thread mapping.
func New(cfg config.AssistantConfig, store database.Store, log *slog.Logger) (*Dispatcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if store == nil {
		return nil, fmt.Errorf("openai dispatcher requires a thread store")
	}

	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return newDispatcher(gopenai.NewClientWithConfig(clientCfg), store, cfg, log), nil
}

func newDispatcher(api assistantsAPI, store threadStore, cfg config.AssistantConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = config.DefaultAssistantPollInterval
	}

	d := &Dispatcher{
		api:          api,
		store:        store,
		log:          log.With("component", "openai_dispatcher"),
		pollInterval: pollInterval,
		instruction:  cfg.Instruction,
		temperature:  cfg.Temperature,
	}
	d.log.Info("OpenAI Assistants dispatcher initialized", "poll_interval", pollInterval)
	return d
}

// Dispatch appends text to the conversation's thread, runs the assistant on
// it and returns the assistant's reply.
func (d *Dispatcher) Dispatch(ctx context.Context, conv platform.Conversation, text string) (string, error) {
	assistantID := conv.AssistantID
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.NewDispatchError(assistantID, "cannot dispatch", ErrEmptyUserMessage)
	}

	key := threadKey(conv)
	log := d.log.With("bot_id", conv.BotID, "assistant_id", assistantID, "chat_id", conv.ChatID)

	threadID, err := d.threadFor(ctx, key)
	if err != nil {
		return "", errs.NewDispatchError(assistantID, "failed to resolve thread", err)
	}
	log = log.With("thread_id", threadID)

	if _, err := d.api.CreateMessage(ctx, threadID, gopenai.MessageRequest{
		Role:    roleUser,
		Content: text,
	}); err != nil {
		log.ErrorContext(ctx, "Failed to add message to thread", "error", err)
		return "", errs.NewDispatchError(assistantID, "failed to add message to thread", err)
	}

	req := gopenai.RunRequest{AssistantID: assistantID}
	if d.temperature != nil {
		temperature := *d.temperature
		req.Temperature = &temperature
	}
	if d.instruction != "" {
		req.AdditionalInstructions = d.instruction
	}
	run, err := d.api.CreateRun(ctx, threadID, req)
	if err != nil {
		log.ErrorContext(ctx, "Failed to start assistant run", "error", err)
		return "", errs.NewDispatchError(assistantID, "failed to start run", err)
	}
	log = log.With("run_id", run.ID)
	log.DebugContext(ctx, "Assistant run started")

	run, err = d.waitForRun(ctx, threadID, run)
	if err != nil {
		log.WarnContext(ctx, "Assistant run failed", "error", err)
		return "", errs.NewDispatchError(assistantID, "assistant run failed", err)
	}

	reply, err := d.replyForRun(ctx, threadID, run.ID)
	if err != nil {
		log.WarnContext(ctx, "Failed to read assistant reply", "error", err)
		return "", errs.NewDispatchError(assistantID, "failed to read reply", err)
	}

	if err := d.store.TouchThread(ctx, key); err != nil {
		log.WarnContext(ctx, "Failed to touch thread", "error", err)
	}

	log.DebugContext(ctx, "Assistant replied", "reply_preview", logger.Truncate(reply, 50))
	return reply, nil
}

// Reset forgets the conversation's thread locally and deletes it remotely.
// The remote delete is best effort.
func (d *Dispatcher) Reset(ctx context.Context, conv platform.Conversation) error {
	key := threadKey(conv)
	thread, err := d.store.GetThread(ctx, key)
	if err != nil {
		return errs.NewDispatchError(conv.AssistantID, "failed to look up thread", err)
	}
	if thread == nil {
		return nil
	}

	if err := d.store.DeleteThread(ctx, key); err != nil {
		return errs.NewDispatchError(conv.AssistantID, "failed to forget thread", err)
	}
	if err := d.DeleteRemoteThread(ctx, thread.ThreadID); err != nil {
		d.log.WarnContext(ctx, "Failed to delete remote thread", "thread_id", thread.ThreadID, "error", err)
	}

	d.log.InfoContext(ctx, "Thread reset", "bot_id", conv.BotID, "assistant_id", conv.AssistantID, "chat_id", conv.ChatID, "thread_id", thread.ThreadID)
	return nil
}

// DeleteRemoteThread deletes a thread on the OpenAI side. The local mapping
// is left alone.
func (d *Dispatcher) DeleteRemoteThread(ctx context.Context, threadID string) error {
	if _, err := d.api.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

func threadKey(conv platform.Conversation) database.ThreadKey {
	return database.ThreadKey{BotID: conv.BotID, AssistantID: conv.AssistantID, ChatID: conv.ChatID}
}

func (d *Dispatcher) threadFor(ctx context.Context, key database.ThreadKey) (string, error) {
	existing, err := d.store.GetThread(ctx, key)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ThreadID, nil
	}

	thread, err := d.api.CreateThread(ctx, gopenai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if err := d.store.SaveThread(ctx, &database.Thread{ThreadKey: key, ThreadID: thread.ID}); err != nil {
		return "", err
	}

	d.log.InfoContext(ctx, "Created assistant thread", "bot_id", key.BotID, "assistant_id", key.AssistantID, "chat_id", key.ChatID, "thread_id", thread.ID)
	return thread.ID, nil
}

// waitForRun polls the run until it reaches a terminal status. If ctx ends
// first the run is cancelled so the thread accepts new messages.
func (d *Dispatcher) waitForRun(ctx context.Context, threadID string, run gopenai.Run) (gopenai.Run, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case gopenai.RunStatusCompleted:
			return run, nil
		case gopenai.RunStatusFailed, gopenai.RunStatusCancelled, gopenai.RunStatusExpired,
			gopenai.RunStatusIncomplete:
			return run, fmt.Errorf("%w: status %s", ErrRunNotCompleted, run.Status)
		case gopenai.RunStatusRequiresAction:
			d.cancelRun(ctx, threadID, run.ID)
			return run, fmt.Errorf("%w: assistant requested tool outputs", ErrRunNotCompleted)
		}

		select {
		case <-ctx.Done():
			d.cancelRun(ctx, threadID, run.ID)
			return run, ctx.Err()
		case <-ticker.C:
		}

		next, err := d.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("retrieve run: %w", err)
		}
		run = next
	}
}

func (d *Dispatcher) cancelRun(ctx context.Context, threadID, runID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if _, err := d.api.CancelRun(cancelCtx, threadID, runID); err != nil {
		d.log.WarnContext(ctx, "Failed to cancel assistant run", "thread_id", threadID, "run_id", runID, "error", err)
	}
}

// replyForRun returns the text of the newest assistant message produced by
// the run.
func (d *Dispatcher) replyForRun(ctx context.Context, threadID, runID string) (string, error) {
	limit := replyPageSize
	order := "desc"
	list, err := d.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	for _, msg := range list.Messages {
		if msg.Role != roleAssistant {
			continue
		}
		if text := messageText(msg); text != "" {
			return text, nil
		}
	}
	return "", ErrEmptyResponse
}

func messageText(msg gopenai.Message) string {
	var parts []string
	for _, content := range msg.Content {
		if content.Text == nil {
			continue
		}
		if v := strings.TrimSpace(content.Text.Value); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n\n")
}

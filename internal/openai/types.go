// Package openai dispatches chat messages to OpenAI Assistants. Every
// conversation (bot, assistant, chat) keeps one remote thread, so an
// assistant sees the whole conversation and survives restarts.
package openai

import (
	"context"
	"errors"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/edgard/assistbots/internal/database"
)

// assistantsAPI is the subset of the go-openai client used by Dispatcher.
type assistantsAPI interface {
	CreateThread(ctx context.Context, request gopenai.ThreadRequest) (gopenai.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (gopenai.ThreadDeleteResponse, error)
	CreateMessage(ctx context.Context, threadID string, request gopenai.MessageRequest) (gopenai.Message, error)
	CreateRun(ctx context.Context, threadID string, request gopenai.RunRequest) (gopenai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (gopenai.Run, error)
	CancelRun(ctx context.Context, threadID string, runID string) (gopenai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (gopenai.MessagesList, error)
}

// threadStore persists the conversation to thread mapping.
type threadStore interface {
	GetThread(ctx context.Context, key database.ThreadKey) (*database.Thread, error)
	SaveThread(ctx context.Context, thread *database.Thread) error
	TouchThread(ctx context.Context, key database.ThreadKey) error
	DeleteThread(ctx context.Context, key database.ThreadKey) error
}

// Sentinel failures, wrapped into DispatchError.
var (
	ErrEmptyUserMessage = errors.New("user message is empty")
	ErrEmptyResponse    = errors.New("assistant returned no text")
	ErrRunNotCompleted  = errors.New("assistant run did not complete")
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	// cancelTimeout bounds the best-effort cancel of an abandoned run.
	cancelTimeout = 5 * time.Second
	// replyPageSize is how many run messages are fetched when looking for the reply.
	replyPageSize = 20
)

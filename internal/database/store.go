package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	errs "github.com/edgard/assistbots/internal/errors"
	"github.com/edgard/assistbots/internal/logger"
)

// Store defines the thread store operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetThread returns the thread for the conversation, or nil, nil if none exists.
	GetThread(ctx context.Context, key ThreadKey) (*Thread, error)

	// SaveThread inserts or replaces the conversation's thread and bumps updated_at.
	SaveThread(ctx context.Context, thread *Thread) error

	// TouchThread bumps updated_at for an existing thread.
	TouchThread(ctx context.Context, key ThreadKey) error

	// DeleteThread forgets the conversation's thread. Deleting a missing thread is not an error.
	DeleteThread(ctx context.Context, key ThreadKey) error

	// DeleteThreadsBefore removes threads idle since before cutoff and
	// returns the removed rows.
	DeleteThreadsBefore(ctx context.Context, cutoff time.Time) ([]Thread, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, log *slog.Logger) Store {
	if log == nil {
		log = logger.Discard()
	}
	return &sqlxStore{
		db:     db,
		logger: log.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errs.NewDatabaseError("ping failed", err)
	}
	return nil
}

func (s *sqlxStore) GetThread(ctx context.Context, key ThreadKey) (*Thread, error) {
	var thread Thread
	err := s.db.GetContext(ctx, &thread, `
        SELECT bot_id, assistant_id, chat_id, thread_id, created_at, updated_at
        FROM threads
        WHERE bot_id = ? AND assistant_id = ? AND chat_id = ?;
    `, key.BotID, key.AssistantID, key.ChatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.logger.ErrorContext(ctx, "Failed to get thread", keyAttrs(key, "error", err)...)
		return nil, errs.NewDatabaseError(fmt.Sprintf("failed to get thread (bot %d, assistant %s, chat %d)", key.BotID, key.AssistantID, key.ChatID), err)
	}
	return &thread, nil
}

func (s *sqlxStore) SaveThread(ctx context.Context, thread *Thread) error {
	if thread == nil {
		return fmt.Errorf("cannot save nil thread")
	}
	if thread.AssistantID == "" || thread.ThreadID == "" {
		return fmt.Errorf("thread must have assistant_id and thread_id")
	}

	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO threads (bot_id, assistant_id, chat_id, thread_id, created_at, updated_at)
        VALUES (:bot_id, :assistant_id, :chat_id, :thread_id, :created_at, :updated_at)
        ON CONFLICT (bot_id, assistant_id, chat_id) DO UPDATE SET
            thread_id  = excluded.thread_id,
            updated_at = excluded.updated_at;
    `, thread)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save thread", keyAttrs(thread.ThreadKey, "error", err)...)
		return errs.NewDatabaseError("failed to save thread", err)
	}

	s.logger.DebugContext(ctx, "Saved thread", keyAttrs(thread.ThreadKey, "thread_id", thread.ThreadID)...)
	return nil
}

func (s *sqlxStore) TouchThread(ctx context.Context, key ThreadKey) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE threads SET updated_at = ? WHERE bot_id = ? AND assistant_id = ? AND chat_id = ?;`,
		time.Now().UTC(), key.BotID, key.AssistantID, key.ChatID)
	if err != nil {
		return errs.NewDatabaseError("failed to touch thread", err)
	}
	return nil
}

func (s *sqlxStore) DeleteThread(ctx context.Context, key ThreadKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM threads WHERE bot_id = ? AND assistant_id = ? AND chat_id = ?;`,
		key.BotID, key.AssistantID, key.ChatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete thread", keyAttrs(key, "error", err)...)
		return errs.NewDatabaseError("failed to delete thread", err)
	}
	return nil
}

func (s *sqlxStore) DeleteThreadsBefore(ctx context.Context, cutoff time.Time) ([]Thread, error) {
	var removed []Thread
	err := s.db.SelectContext(ctx, &removed, `
        DELETE FROM threads
        WHERE updated_at < ?
        RETURNING bot_id, assistant_id, chat_id, thread_id, created_at, updated_at;
    `, cutoff.UTC())
	if err != nil {
		return nil, errs.NewDatabaseError("failed to delete stale threads", err)
	}
	return removed, nil
}

func keyAttrs(key ThreadKey, extra ...any) []any {
	return append([]any{"bot_id", key.BotID, "assistant_id", key.AssistantID, "chat_id", key.ChatID}, extra...)
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return errs.NewDatabaseError("failed to execute VACUUM", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	return nil
}

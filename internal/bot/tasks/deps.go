// Package tasks implements the maintenance jobs run by the scheduler.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/assistbots/internal/database"
)

// ThreadDeleter removes a conversation thread held by the assistant
// provider.
type ThreadDeleter interface {
	DeleteRemoteThread(ctx context.Context, threadID string) error
}

// TaskDeps contains the dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	ThreadTTL time.Duration
	// RemoteThreads deletes expired threads at the provider; nil when the
	// provider keeps no remote threads.
	RemoteThreads ThreadDeleter
	// Now is the clock used by time based tasks; time.Now when nil.
	Now func() time.Time
}

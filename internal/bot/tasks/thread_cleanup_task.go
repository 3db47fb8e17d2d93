package tasks

import (
	"context"
	"fmt"
	"time"
)

// newThreadCleanupTask creates the task that forgets threads idle for longer
// than the configured TTL. The next message in such a chat starts a new
// conversation. Remote deletion is best effort; a failure is logged and the
// local row stays deleted.
func newThreadCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", ThreadCleanup)
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return func(ctx context.Context) error {
		if deps.ThreadTTL <= 0 {
			log.WarnContext(ctx, "Thread TTL not set, skipping cleanup")
			return nil
		}

		cutoff := now().Add(-deps.ThreadTTL)
		removed, err := deps.Store.DeleteThreadsBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("thread cleanup failed: %w", err)
		}

		remoteFailed := 0
		if deps.RemoteThreads != nil {
			for _, thread := range removed {
				if ctx.Err() != nil {
					break
				}
				if err := deps.RemoteThreads.DeleteRemoteThread(ctx, thread.ThreadID); err != nil {
					remoteFailed++
					log.WarnContext(ctx, "Failed to delete remote thread",
						"thread_id", thread.ThreadID,
						"assistant_id", thread.AssistantID,
						"error", err)
				}
			}
		}

		log.InfoContext(ctx, "Removed idle threads",
			"removed", len(removed),
			"remote_failed", remoteFailed,
			"cutoff", cutoff)
		return nil
	}
}

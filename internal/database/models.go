package database

import "time"

// ThreadKey identifies the conversation a thread belongs to: one chat seen
// by one bot bound to one assistant.
type ThreadKey struct {
	BotID       int64  `db:"bot_id"`
	AssistantID string `db:"assistant_id"`
	ChatID      int64  `db:"chat_id"`
}

// Thread maps one conversation to one remote assistant thread. Bots that
// share an assistant keep separate threads even for the same chat ID.
type Thread struct {
	ThreadKey
	ThreadID  string    `db:"thread_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

package queue

import (
	"context"
	"time"
)

// TitleTask represents a session waiting for title inference.
type TitleTask struct {
	SessionID uint
	PublicID  string
	UserID    string
	QueuedAt  time.Time
}

// TitleQueue defines the interface for title task queue operations.
type TitleQueue interface {
	// Dequeue fetches the next queued session using SELECT FOR UPDATE SKIP LOCKED
	Dequeue(ctx context.Context) (*TitleTask, error)

	// MarkCompleted marks the session title as generated
	MarkCompleted(ctx context.Context, sessionID uint) error

	// MarkFailed returns the session to the queue for a later retry
	MarkFailed(ctx context.Context, sessionID uint, err error) error

	// GetQueueDepth returns the number of sessions awaiting a title
	GetQueueDepth(ctx context.Context) (int64, error)
}

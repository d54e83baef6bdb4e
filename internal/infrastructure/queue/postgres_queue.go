package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/infrastructure/database/entities"
)

// PostgresQueue implements TitleQueue using the chat_sessions table.
// Sessions with title_state = 'queued' are the work items.
type PostgresQueue struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed title queue.
func NewPostgresQueue(db *gorm.DB, log zerolog.Logger) *PostgresQueue {
	return &PostgresQueue{
		db:  db,
		log: log.With().Str("component", "postgres-queue").Logger(),
	}
}

var _ TitleQueue = (*PostgresQueue)(nil)

// Dequeue fetches the next queued session using FOR UPDATE SKIP LOCKED.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*TitleTask, error) {
	var entity entities.ChatSession

	err := q.db.WithContext(ctx).
		Raw("SELECT * FROM chat_sessions WHERE title_state = ? ORDER BY updated_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED", string(chat.TitleStateQueued)).
		Scan(&entity).Error

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil // No tasks available
		}
		return nil, fmt.Errorf("dequeue title task: %w", err)
	}

	// Check if no rows were returned (entity.ID will be 0)
	if entity.ID == 0 {
		return nil, nil // No tasks available
	}

	task := &TitleTask{
		SessionID: entity.ID,
		PublicID:  entity.PublicID,
		UserID:    entity.UserID,
		QueuedAt:  entity.UpdatedAt,
	}

	return task, nil
}

// MarkCompleted updates the session title state to completed.
func (q *PostgresQueue) MarkCompleted(ctx context.Context, sessionID uint) error {
	result := q.db.WithContext(ctx).
		Model(&entities.ChatSession{}).
		Where("id = ?", sessionID).
		Update("title_state", string(chat.TitleStateCompleted))

	if result.Error != nil {
		return fmt.Errorf("mark title completed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("chat session not found: %d", sessionID)
	}

	return nil
}

// MarkFailed returns the session to the pending state so a later turn
// can queue it again.
func (q *PostgresQueue) MarkFailed(ctx context.Context, sessionID uint, taskErr error) error {
	q.log.Warn().Err(taskErr).Uint("session_id", sessionID).Msg("title task failed")

	result := q.db.WithContext(ctx).
		Model(&entities.ChatSession{}).
		Where("id = ?", sessionID).
		Update("title_state", string(chat.TitleStatePending))

	if result.Error != nil {
		return fmt.Errorf("mark title failed: %w", result.Error)
	}

	return nil
}

// GetQueueDepth returns the number of sessions awaiting title inference.
func (q *PostgresQueue) GetQueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&entities.ChatSession{}).
		Where("title_state = ?", string(chat.TitleStateQueued)).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}

	return count, nil
}

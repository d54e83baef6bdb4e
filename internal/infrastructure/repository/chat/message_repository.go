package chat

import (
	"context"

	"gorm.io/gorm"

	domain "isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/infrastructure/database/entities"
	"isuite-server/chat-api/internal/utils/platformerrors"
)

// MessageRepository persists individual chat messages.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository builds a message repository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

var _ domain.MessageRepository = (*MessageRepository)(nil)

// Create inserts a message, assigning the next sequence number within
// the session when none is set.
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	entity, err := entities.MessageDtoE(message)
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeInternal,
			"failed to encode message tool calls",
			err,
			"6c9d0e1f-2a3b-4c5d-6e7f-8a9b0c1d2e3f",
		)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entity.Sequence == 0 {
			var next int
			if err := tx.Raw(
				"SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE session_id = ?",
				entity.SessionID,
			).Scan(&next).Error; err != nil {
				return err
			}
			entity.Sequence = next
		}
		return tx.Create(entity).Error
	})
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create message",
			err,
			"7d0e1f2a-3b4c-5d6e-7f8a-9b0c1d2e3f4a",
		)
	}

	message.ID = entity.ID
	message.Sequence = entity.Sequence
	message.CreatedAt = entity.CreatedAt
	return nil
}

// ListBySessionID returns all messages of a session in creation order.
func (r *MessageRepository) ListBySessionID(ctx context.Context, sessionID uint) ([]domain.Message, error) {
	var rows []entities.Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list messages",
			err,
			"8e1f2a3b-4c5d-6e7f-8a9b-0c1d2e3f4a5b",
		)
	}

	messages := make([]domain.Message, len(rows))
	for i := range rows {
		messages[i] = *rows[i].EtoD()
	}
	return messages, nil
}

// CountBySessionID counts the messages of a session.
func (r *MessageRepository) CountBySessionID(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.Message{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to count messages",
			err,
			"9f2a3b4c-5d6e-7f8a-9b0c-1d2e3f4a5b6c",
		)
	}
	return count, nil
}

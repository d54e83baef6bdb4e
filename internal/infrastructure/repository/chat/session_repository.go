// Package chat persists chat sessions and messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/infrastructure/database/entities"
	"isuite-server/chat-api/internal/utils/platformerrors"
)

// SessionRepository persists chat session metadata.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository builds a session repository.
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ domain.SessionRepository = (*SessionRepository)(nil)

// Create inserts the session record.
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	entity := entities.SessionDtoE(session)

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create chat session",
			err,
			"8a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d",
		)
	}

	session.ID = entity.ID
	session.CreatedAt = entity.CreatedAt
	session.UpdatedAt = entity.UpdatedAt
	return nil
}

// FindByPublicID fetches a session by public ID, scoped to the owning
// user. Foreign sessions read as NotFound.
func (r *SessionRepository) FindByPublicID(ctx context.Context, publicID, userID string) (*domain.Session, error) {
	var entity entities.ChatSession
	if err := r.db.WithContext(ctx).
		Where("public_id = ? AND user_id = ?", publicID, userID).
		First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				fmt.Sprintf("chat session not found: %s", publicID),
				nil,
				"9b2c3d4e-5f6a-7b8c-9d0e-1f2a3b4c5d6e",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to fetch chat session",
			err,
			"0c3d4e5f-6a7b-8c9d-0e1f-2a3b4c5d6e7f",
		)
	}

	return entity.EtoD(), nil
}

// sessionRow carries the list annotations alongside the entity columns.
type sessionRow struct {
	entities.ChatSession
	MessageCount int64   `gorm:"column:message_count"`
	LastMessage  *string `gorm:"column:last_message"`
}

// ListByUser returns the user's sessions most recently updated first,
// each annotated with its message count and first message preview.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var rows []sessionRow
	err := r.db.WithContext(ctx).
		Model(&entities.ChatSession{}).
		Select(`chat_sessions.*,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = chat_sessions.id) AS message_count,
			(SELECT m.content FROM messages m WHERE m.session_id = chat_sessions.id ORDER BY m.created_at ASC LIMIT 1) AS last_message`).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list chat sessions",
			err,
			"1d4e5f6a-7b8c-9d0e-1f2a-3b4c5d6e7f8a",
		)
	}

	sessions := make([]domain.Session, len(rows))
	for i, row := range rows {
		session := row.ChatSession.EtoD()
		session.MessageCount = row.MessageCount
		session.LastMessage = row.LastMessage
		sessions[i] = *session
	}
	return sessions, nil
}

// Update saves the mutable session fields.
func (r *SessionRepository) Update(ctx context.Context, session *domain.Session) error {
	err := r.db.WithContext(ctx).
		Model(&entities.ChatSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"title":       session.Title,
			"title_state": string(session.TitleState),
		}).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update chat session",
			err,
			"2e5f6a7b-8c9d-0e1f-2a3b-4c5d6e7f8a9b",
		)
	}
	return nil
}

// Touch bumps the session's updated_at so history ordering follows
// activity.
func (r *SessionRepository) Touch(ctx context.Context, sessionID uint) error {
	err := r.db.WithContext(ctx).
		Model(&entities.ChatSession{}).
		Where("id = ?", sessionID).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to touch chat session",
			err,
			"3f6a7b8c-9d0e-1f2a-3b4c-5d6e7f8a9b0c",
		)
	}
	return nil
}

// Delete removes a session and, through the cascade rule, its messages.
func (r *SessionRepository) Delete(ctx context.Context, publicID, userID string) error {
	result := r.db.WithContext(ctx).
		Where("public_id = ? AND user_id = ?", publicID, userID).
		Delete(&entities.ChatSession{})
	if result.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete chat session",
			result.Error,
			"4a7b8c9d-0e1f-2a3b-4c5d-6e7f8a9b0c1d",
		)
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("chat session not found: %s", publicID),
			nil,
			"5b8c9d0e-1f2a-3b4c-5d6e-7f8a9b0c1d2e",
		)
	}
	return nil
}

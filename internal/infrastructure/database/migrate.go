package database

import (
	"fmt"

	"gorm.io/gorm"

	"isuite-server/chat-api/internal/infrastructure/database/entities"
)

// Migrate applies the schema for all chat tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.ChatSession{},
		&entities.Message{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"isuite-server/chat-api/internal/config"
	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/domain/llm"
	"isuite-server/chat-api/internal/infrastructure/auth"
	"isuite-server/chat-api/internal/infrastructure/database"
	"isuite-server/chat-api/internal/infrastructure/integrations"
	"isuite-server/chat-api/internal/infrastructure/llmprovider"
	"isuite-server/chat-api/internal/infrastructure/logger"
	chatrepo "isuite-server/chat-api/internal/infrastructure/repository/chat"
	"isuite-server/chat-api/internal/interfaces/httpserver"
)

var chatSet = wire.NewSet(
	chatrepo.NewSessionRepository,
	wire.Bind(new(chat.SessionRepository), new(*chatrepo.SessionRepository)),
	chatrepo.NewMessageRepository,
	wire.Bind(new(chat.MessageRepository), new(*chatrepo.MessageRepository)),
	newLLMProvider,
	wire.Bind(new(llm.Provider), new(*llmprovider.Client)),
	newIntegrationsClient,
	wire.Bind(new(integrations.Service), new(*integrations.Client)),
	chat.NewService,
)

// BuildApplication demonstrates how to assemble the chat service with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newDatabaseConfig,
		newGormDB,
		newAuthValidator,
		chatSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(cfg database.Config) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newAuthValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, error) {
	return auth.NewValidator(ctx, cfg, log)
}

func newLLMProvider(cfg *config.Config) *llmprovider.Client {
	return llmprovider.NewClient(cfg.LLMAPIURL)
}

func newIntegrationsClient(cfg *config.Config, log zerolog.Logger) *integrations.Client {
	return integrations.NewClient(cfg.IntegrationsURL, cfg.IntegrationsAPIKey, log)
}

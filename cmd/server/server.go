package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"isuite-server/chat-api/internal/config"
	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/infrastructure/auth"
	"isuite-server/chat-api/internal/infrastructure/database"
	"isuite-server/chat-api/internal/infrastructure/integrations"
	"isuite-server/chat-api/internal/infrastructure/llmprovider"
	"isuite-server/chat-api/internal/infrastructure/logger"
	"isuite-server/chat-api/internal/infrastructure/observability"
	"isuite-server/chat-api/internal/infrastructure/queue"
	chatrepo "isuite-server/chat-api/internal/infrastructure/repository/chat"
	"isuite-server/chat-api/internal/interfaces/httpserver"
	"isuite-server/chat-api/internal/worker"
)

// @title Chat API
// @version 1.0
// @description Chat session management with streaming assistant turns, live tool call tracking, and background title inference.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	sessionRepository := chatrepo.NewSessionRepository(db)
	messageRepository := chatrepo.NewMessageRepository(db)
	llmClient := llmprovider.NewClient(cfg.LLMAPIURL)
	connectionClient := integrations.NewClient(cfg.IntegrationsURL, cfg.IntegrationsAPIKey, log)

	chatService := chat.NewService(
		sessionRepository,
		messageRepository,
		llmClient,
		cfg,
		log,
	)

	// Background title inference
	titleQueue := queue.NewPostgresQueue(db, log)
	workerPool := worker.NewPool(
		titleQueue,
		chatService,
		worker.Config{
			WorkerCount:  cfg.TitleWorkerCount,
			TaskTimeout:  cfg.TitleTaskTimeout,
			PollInterval: cfg.TitlePollInterval,
		},
		log,
	)

	workerPool.Start(ctx)
	defer func() {
		log.Info().Msg("stopping worker pool")
		workerPool.Stop()
	}()

	httpServer := httpserver.New(cfg, log, chatService, connectionClient, authValidator)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

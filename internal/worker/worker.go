package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/infrastructure/metrics"
	"isuite-server/chat-api/internal/infrastructure/observability"
	"isuite-server/chat-api/internal/infrastructure/queue"
)

// Worker infers session titles queued for background processing.
type Worker struct {
	id           int
	queue        queue.TitleQueue
	chatService  *chat.Service
	taskTimeout  time.Duration
	pollInterval time.Duration
	log          zerolog.Logger
	stopChan     chan struct{}
}

// NewWorker creates a new background worker.
func NewWorker(
	id int,
	queue queue.TitleQueue,
	chatService *chat.Service,
	taskTimeout time.Duration,
	pollInterval time.Duration,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		chatService:  chatService,
		taskTimeout:  taskTimeout,
		pollInterval: pollInterval,
		log:          log.With().Int("worker_id", id).Str("component", "worker").Logger(),
		stopChan:     make(chan struct{}),
	}
}

// Start begins processing title tasks from the queue.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped by context")
			return
		case <-w.stopChan:
			w.log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			w.processNextTask(ctx)
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	close(w.stopChan)
}

func (w *Worker) processNextTask(ctx context.Context) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to dequeue title task")
		return
	}

	if task == nil {
		// No tasks available
		return
	}

	w.log.Info().
		Str("session_id", task.PublicID).
		Str("user_id", task.UserID).
		Msg("processing title task")

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	taskCtx, span := observability.StartTitleSpan(taskCtx, task.PublicID)
	defer span.End()

	session := &chat.Session{
		ID:         task.SessionID,
		PublicID:   task.PublicID,
		UserID:     task.UserID,
		TitleState: chat.TitleStateQueued,
	}

	if err := w.chatService.GenerateTitle(taskCtx, session); err != nil {
		w.log.Error().Err(err).Str("session_id", task.PublicID).Msg("title task failed")
		observability.RecordError(span, err)
		metrics.RecordTitleInference("failed")
		if markErr := w.queue.MarkFailed(ctx, task.SessionID, err); markErr != nil {
			w.log.Error().Err(markErr).Str("session_id", task.PublicID).Msg("failed to mark title task as failed")
		}
		return
	}

	// Sessions with too few messages pass through untitled; mark them so
	// the queue does not hand them out again.
	if session.TitleState != chat.TitleStateCompleted {
		if err := w.queue.MarkCompleted(ctx, task.SessionID); err != nil {
			w.log.Error().Err(err).Str("session_id", task.PublicID).Msg("failed to mark title task completed")
			return
		}
	}

	metrics.RecordTitleInference("completed")
	w.log.Info().Str("session_id", task.PublicID).Msg("title task completed")
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/domain/llm"
	"isuite-server/chat-api/internal/domain/status"
	"isuite-server/chat-api/internal/domain/stream"
	"isuite-server/chat-api/internal/infrastructure/auth"
	"isuite-server/chat-api/internal/infrastructure/metrics"
	"isuite-server/chat-api/internal/infrastructure/observability"
	"isuite-server/chat-api/internal/interfaces/httpserver/dto"
	"isuite-server/chat-api/internal/interfaces/httpserver/responses"
)

// ChatHandler exposes the turn streaming entrypoint.
type ChatHandler struct {
	service *chat.Service
	auth    *auth.Validator
	log     zerolog.Logger
}

// NewChatHandler constructs the handler.
func NewChatHandler(service *chat.Service, authValidator *auth.Validator, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		auth:    authValidator,
		log:     log.With().Str("handler", "chat").Logger(),
	}
}

// SendTurn handles POST /v1/chat/sessions/:session_id/turns
// @Summary Send a message and stream the assistant turn
// @Description Appends the user message and streams the assistant turn back as server-sent events. Only one turn per session may be in flight; concurrent sends fail with 409.
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param session_id path string true "Session ID"
// @Param request body dto.SendTurnRequest true "User message"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} responses.ErrorResponse
// @Failure 409 {object} responses.ErrorResponse
// @Router /v1/chat/sessions/{session_id}/turns [post]
func (h *ChatHandler) SendTurn(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	var req dto.SendTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if token := auth.RawToken(c); token != "" {
		// Prefer the token the middleware validated over the raw header.
		authHeader = "Bearer " + token
	}
	authCtx := llm.ContextWithAuthToken(c.Request.Context(), authHeader)
	spanCtx, span := observability.StartTurnSpan(authCtx, c.Param("session_id"))
	defer span.End()
	c.Request = c.Request.WithContext(spanCtx)

	observer := newSSEObserver(c.Writer, flusher, h.log)
	observer.span = span
	started := time.Now()

	err = h.service.StartTurn(c.Request.Context(), user.ID, c.Param("session_id"), req.Content, observer)
	if err != nil {
		observability.RecordError(span, err)
		// Setup failures surface as plain JSON when nothing streamed yet.
		if !observer.Started() {
			responses.HandleError(c, err, "failed to start turn")
			return
		}
		observer.OnError(err.Error(), 0)
		return
	}

	metrics.RecordTurn(observer.FinalStatus(), time.Since(started).Seconds())
}

// sseObserver forwards turn progress as server-sent events. The turn may
// outlive the client connection, so writes after a disconnect are absorbed
// by the response writer and simply go nowhere.
type sseObserver struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	log     zerolog.Logger
	span    trace.Span

	mu      sync.Mutex
	started bool
	turnID  string
	final   string
}

func newSSEObserver(w http.ResponseWriter, flusher http.Flusher, log zerolog.Logger) *sseObserver {
	return &sseObserver{
		writer:  w,
		flusher: flusher,
		log:     log,
		final:   "completed",
	}
}

var _ chat.TurnObserver = (*sseObserver)(nil)

func (o *sseObserver) OnTurnCreated(turnID string) {
	o.mu.Lock()
	o.turnID = turnID
	o.mu.Unlock()
	o.sendEvent("turn.created", map[string]string{"id": turnID})
}

func (o *sseObserver) OnDelta(text string) {
	o.sendEvent("turn.delta", map[string]string{
		"id":    o.turnID,
		"delta": text,
	})
}

func (o *sseObserver) OnStep(step *stream.TaskStep) {
	metrics.RecordTaskStep(step.Toolkit, string(step.Status))
	if o.span != nil {
		observability.AddStepEvent(o.span, step.CallID, step.Tool, step.Toolkit)
	}
	o.sendEvent("turn.step", map[string]any{
		"id":   o.turnID,
		"step": step,
	})
}

func (o *sseObserver) OnSummary(summary string) {
	o.sendEvent("turn.summary", map[string]string{
		"id":      o.turnID,
		"summary": summary,
	})
}

func (o *sseObserver) OnCompleted(turn *stream.Turn, message *chat.Message) {
	payload := map[string]any{
		"id":      turn.ID,
		"status":  string(turn.Status),
		"text":    turn.Text(),
		"steps":   turn.Steps,
		"summary": turn.Summary(),
	}
	if message != nil {
		payload["message"] = dto.FromMessage(message)
	}
	o.sendEvent("turn.completed", payload)
}

func (o *sseObserver) OnError(reason string, retryAfter time.Duration) {
	o.mu.Lock()
	o.final = string(status.TurnFailed)
	o.mu.Unlock()
	metrics.RecordStreamError()

	payload := map[string]any{
		"id":      o.turnID,
		"message": reason,
	}
	if retryAfter > 0 {
		payload["retry_after"] = int(retryAfter.Seconds())
	}
	o.sendEvent("turn.error", payload)
}

// Started reports whether any event reached the wire.
func (o *sseObserver) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// FinalStatus reports how the turn ended, for metrics.
func (o *sseObserver) FinalStatus() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.final
}

func (o *sseObserver) sendEvent(name string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		o.started = true
		o.writer.Header().Set("Content-Type", "text/event-stream")
		o.writer.Header().Set("Cache-Control", "no-cache")
		o.writer.Header().Set("Connection", "keep-alive")
		o.writer.WriteHeader(http.StatusOK)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		o.log.Error().Err(err).Msg("marshal SSE payload")
		return
	}

	fmt.Fprintf(o.writer, "event: %s\n", name)
	fmt.Fprintf(o.writer, "data: %s\n\n", data)
	o.flusher.Flush()
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/domain/chat"
	"isuite-server/chat-api/internal/infrastructure/auth"
	"isuite-server/chat-api/internal/interfaces/httpserver/dto"
	"isuite-server/chat-api/internal/interfaces/httpserver/responses"
)

// SessionHandler exposes HTTP entrypoints for session lifecycle.
type SessionHandler struct {
	service *chat.Service
	auth    *auth.Validator
	log     zerolog.Logger
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service *chat.Service, authValidator *auth.Validator, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		auth:    authValidator,
		log:     log.With().Str("handler", "session").Logger(),
	}
}

// Create handles POST /v1/chat/sessions
// @Summary Create a chat session
// @Description Starts a new conversation, reusing the user's active session when it is still empty.
// @Tags Sessions
// @Produce json
// @Success 201 {object} dto.SessionPayload
// @Router /v1/chat/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), user.ID)
	if err != nil {
		responses.HandleError(c, err, "failed to create session")
		return
	}

	c.JSON(http.StatusCreated, dto.FromSession(session))
}

// List handles GET /v1/chat/sessions
// @Summary List chat sessions
// @Description Returns the user's sessions most recently updated first, optionally filtered by title.
// @Tags Sessions
// @Produce json
// @Param search query string false "Case-insensitive title filter"
// @Success 200 {object} dto.SessionListPayload
// @Router /v1/chat/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), user.ID, c.Query("search"))
	if err != nil {
		responses.HandleError(c, err, "failed to list sessions")
		return
	}

	c.JSON(http.StatusOK, dto.SessionListPayload{Data: dto.FromSessions(sessions)})
}

// Get handles GET /v1/chat/sessions/:session_id
// @Summary Get a chat session
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} dto.SessionDetailPayload
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/chat/sessions/{session_id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	session, messages, err := h.service.GetSession(c.Request.Context(), user.ID, c.Param("session_id"))
	if err != nil {
		responses.HandleError(c, err, "session not found")
		return
	}

	c.JSON(http.StatusOK, dto.SessionDetailPayload{
		Session:  dto.FromSession(session),
		Messages: dto.FromMessages(messages),
	})
}

// Activate handles POST /v1/chat/sessions/:session_id/activate
// @Summary Switch to a chat session
// @Description Makes the session the user's active one and restores its history. An empty session being left behind is deleted.
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} dto.SessionDetailPayload
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/chat/sessions/{session_id}/activate [post]
func (h *SessionHandler) Activate(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	session, messages, err := h.service.ActivateSession(c.Request.Context(), user.ID, c.Param("session_id"))
	if err != nil {
		responses.HandleError(c, err, "session not found")
		return
	}

	c.JSON(http.StatusOK, dto.SessionDetailPayload{
		Session:  dto.FromSession(session),
		Messages: dto.FromMessages(messages),
	})
}

// UpdateTitle handles PATCH /v1/chat/sessions/:session_id
// @Summary Rename a chat session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param session_id path string true "Session ID"
// @Param request body dto.UpdateTitleRequest true "New title"
// @Success 200 {object} dto.SessionPayload
// @Failure 400 {object} responses.ErrorResponse
// @Router /v1/chat/sessions/{session_id} [patch]
func (h *SessionHandler) UpdateTitle(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	var req dto.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.UpdateTitle(c.Request.Context(), user.ID, c.Param("session_id"), req.Title)
	if err != nil {
		responses.HandleError(c, err, "failed to rename session")
		return
	}

	c.JSON(http.StatusOK, dto.FromSession(session))
}

// Delete handles DELETE /v1/chat/sessions/:session_id
// @Summary Delete a chat session
// @Description Removes the session and its messages. Deleting the active session activates the most recent remaining one, or creates a fresh session when none remain.
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/chat/sessions/{session_id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	next, err := h.service.DeleteSession(c.Request.Context(), user.ID, c.Param("session_id"))
	if err != nil {
		responses.HandleError(c, err, "failed to delete session")
		return
	}

	payload := gin.H{"deleted": true}
	if next != nil {
		payload["active_session"] = dto.FromSession(next)
	}
	c.JSON(http.StatusOK, payload)
}

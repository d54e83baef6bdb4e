package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"isuite-server/chat-api/internal/infrastructure/auth"
	"isuite-server/chat-api/internal/infrastructure/integrations"
	"isuite-server/chat-api/internal/interfaces/httpserver/dto"
	"isuite-server/chat-api/internal/interfaces/httpserver/responses"
)

// ConnectionHandler exposes linked account operations.
type ConnectionHandler struct {
	service integrations.Service
	auth    *auth.Validator
	log     zerolog.Logger
}

// NewConnectionHandler constructs the handler.
func NewConnectionHandler(service integrations.Service, authValidator *auth.Validator, log zerolog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		service: service,
		auth:    authValidator,
		log:     log.With().Str("handler", "connection").Logger(),
	}
}

// List handles GET /v1/connections
// @Summary List linked third-party accounts
// @Tags Connections
// @Produce json
// @Success 200 {object} dto.ConnectionListPayload
// @Router /v1/connections [get]
func (h *ConnectionHandler) List(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	connections, err := h.service.ListConnections(c.Request.Context(), user.ID)
	if err != nil {
		responses.HandleError(c, err, "failed to list connections")
		return
	}

	c.JSON(http.StatusOK, dto.ConnectionListPayload{Data: connections})
}

// Initiate handles POST /v1/connections
// @Summary Start linking a third-party account
// @Description Begins the OAuth flow for a toolkit and returns the redirect URL the user must visit.
// @Tags Connections
// @Accept json
// @Produce json
// @Param request body dto.InitiateConnectionRequest true "Toolkit to link"
// @Success 200 {object} integrations.InitiateResult
// @Failure 400 {object} responses.ErrorResponse
// @Router /v1/connections [post]
func (h *ConnectionHandler) Initiate(c *gin.Context) {
	user, err := h.auth.CurrentUser(c)
	if err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	var req dto.InitiateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.InitiateConnection(c.Request.Context(), user.ID, req.Toolkit)
	if err != nil {
		responses.HandleError(c, err, "failed to initiate connection")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Delete handles DELETE /v1/connections/:connection_id
// @Summary Unlink a third-party account
// @Tags Connections
// @Produce json
// @Param connection_id path string true "Connection ID"
// @Success 200 {object} map[string]interface{}
// @Router /v1/connections/{connection_id} [delete]
func (h *ConnectionHandler) Delete(c *gin.Context) {
	if _, err := h.auth.CurrentUser(c); err != nil {
		responses.HandleError(c, err, "unauthorized")
		return
	}

	if err := h.service.DeleteConnection(c.Request.Context(), c.Param("connection_id")); err != nil {
		responses.HandleError(c, err, "failed to delete connection")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

package dto

// SendTurnRequest is the body for POST /v1/chat/sessions/:session_id/turns.
type SendTurnRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateTitleRequest is the body for PATCH /v1/chat/sessions/:session_id.
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// InitiateConnectionRequest is the body for POST /v1/connections.
type InitiateConnectionRequest struct {
	Toolkit string `json:"toolkit" binding:"required"`
}

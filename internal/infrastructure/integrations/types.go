package integrations

import "time"

// Connection is one linked third-party account, owned by the external
// integrations service and read-only to this service.
type Connection struct {
	ID        string    `json:"id"`
	Toolkit   string    `json:"toolkit"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ConnectionStatusActive marks a usable connection.
const ConnectionStatusActive = "ACTIVE"

// InitiateResult is the outcome of starting an account link flow.
type InitiateResult struct {
	RedirectURL  string `json:"redirect_url"`
	ConnectionID string `json:"connection_id"`
}

type listConnectionsResponse struct {
	Items []Connection `json:"items"`
}

type initiateConnectionRequest struct {
	UserID  string `json:"user_id"`
	Toolkit string `json:"toolkit"`
}

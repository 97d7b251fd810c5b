package types

import "time"

// Error messages returned to clients.
const (
	ErrorMethodNotAllowed = "Method not allowed"
	ErrorConfiguration    = "Server configuration error"
	ErrorInternal         = "Internal server error"
)

// ErrorResponse is the body of every unsuccessful reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServiceStatus represents the health of the server.
type ServiceStatus string

const (
	StatusHealthy ServiceStatus = "healthy"
)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    ServiceStatus `json:"status"`
	Uptime    string        `json:"uptime"`
	Timestamp string        `json:"timestamp"`
}

// NewHealthResponse creates a healthy response for the given uptime.
func NewHealthResponse(uptime time.Duration) HealthResponse {
	return HealthResponse{
		Status:    StatusHealthy,
		Uptime:    uptime.Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

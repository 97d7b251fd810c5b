package handler

import (
	"net/http"
	"time"

	"github.com/robalyx/guildstats/internal/rest/types"
	"github.com/uptrace/bunrouter"
)

// HealthHandler reports server liveness.
type HealthHandler struct {
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startTime: time.Now()}
}

// Get returns the server status and uptime.
func (h *HealthHandler) Get(w http.ResponseWriter, _ bunrouter.Request) error {
	return bunrouter.JSON(w, types.NewHealthResponse(time.Since(h.startTime)))
}

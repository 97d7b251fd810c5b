package rest

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/robalyx/guildstats/internal/rest/handler"
	"github.com/robalyx/guildstats/internal/rest/middleware/logging"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Route paths served by the REST server.
const (
	MemberCountPath = "/api/membercount"
	StatsPath       = "/stats"
	HealthPath      = "/health"
)

// NewServer creates the long-running REST server handler.
func NewServer(statsHandler *handler.StatsHandler, logger *zap.Logger) http.Handler {
	healthHandler := handler.NewHealthHandler()
	loggingMiddleware := logging.New(logger)

	// Unrouted methods get the same JSON 405 reply as the function entry.
	// The handler bypasses router.Use, so it is logged explicitly.
	router := bunrouter.New(
		bunrouter.WithMethodNotAllowedHandler(loggingMiddleware.AsRESTMiddleware(statsHandler.MethodNotAllowed)),
	)

	api := router.Use(loggingMiddleware.AsRESTMiddleware)

	api.GET(MemberCountPath, statsHandler.ServeREST)
	api.Handle(http.MethodOptions, MemberCountPath, statsHandler.ServeREST)

	api.WithGroup("/v1", func(g *bunrouter.Group) {
		g.GET(StatsPath, statsHandler.ServeREST)
		g.Handle(http.MethodOptions, StatsPath, statsHandler.ServeREST)
	})

	api.GET(HealthPath, healthHandler.Get)

	return gzhttp.GzipHandler(router)
}

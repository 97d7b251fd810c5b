package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/robalyx/guildstats/internal/rest/types"
	"github.com/robalyx/guildstats/internal/stats"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// fallbackBody is sent when an error reply itself cannot be encoded.
var fallbackBody = []byte(`{"success":false,"error":"Internal server error"}`)

// StatsProvider produces guild statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*stats.Result, error)
}

// StatsHandler serves guild statistics over HTTP.
type StatsHandler struct {
	provider StatsProvider
	logger   *zap.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(provider StatsProvider, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		provider: provider,
		logger:   logger.Named("rest"),
	}
}

// Handle produces the reply for a request with the given method.
// OPTIONS is answered empty, GET returns the statistics and every other
// method is rejected.
func (h *StatsHandler) Handle(ctx context.Context, method string) *Reply {
	switch method {
	case http.MethodOptions:
		return newReply(http.StatusOK)
	case http.MethodGet:
		return h.get(ctx)
	default:
		return h.errorReply(http.StatusMethodNotAllowed, types.ErrorResponse{
			Error: types.ErrorMethodNotAllowed,
		})
	}
}

// ServeHTTP implements http.Handler.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Handle(r.Context(), r.Method).Write(w); err != nil {
		h.logger.Debug("Failed to write reply", zap.Error(err))
	}
}

// ServeREST serves the statistics routes of the REST server.
func (h *StatsHandler) ServeREST(w http.ResponseWriter, req bunrouter.Request) error {
	return h.Handle(req.Context(), req.Method).Write(w)
}

// MethodNotAllowed answers requests whose method has no route.
func (h *StatsHandler) MethodNotAllowed(w http.ResponseWriter, req bunrouter.Request) error {
	return h.Handle(req.Context(), req.Method).Write(w)
}

func (h *StatsHandler) get(ctx context.Context) (reply *Reply) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic while serving stats", zap.Any("panic", r))
			reply = h.errorReply(http.StatusInternalServerError, types.ErrorResponse{
				Error:   types.ErrorInternal,
				Message: fmt.Sprint(r),
			})
		}
	}()

	result, err := h.provider.Stats(ctx)
	if err != nil {
		var cfgErr *stats.ConfigError
		if errors.As(err, &cfgErr) {
			return h.errorReply(http.StatusInternalServerError, types.ErrorResponse{
				Error:   types.ErrorConfiguration,
				Details: cfgErr.Details,
			})
		}

		return h.errorReply(http.StatusInternalServerError, types.ErrorResponse{
			Error:   types.ErrorInternal,
			Message: err.Error(),
		})
	}

	reply, err = jsonReply(http.StatusOK, result)
	if err != nil {
		h.logger.Error("Failed to encode stats", zap.Error(err))
		return h.errorReply(http.StatusInternalServerError, types.ErrorResponse{
			Error:   types.ErrorInternal,
			Message: err.Error(),
		})
	}

	return reply
}

func (h *StatsHandler) errorReply(status int, body types.ErrorResponse) *Reply {
	body.Success = false

	reply, err := jsonReply(status, body)
	if err != nil {
		h.logger.Error("Failed to encode error reply", zap.Error(err))

		reply = newReply(http.StatusInternalServerError)
		reply.Header.Set("Content-Type", "application/json; charset=utf-8")
		reply.Body = fallbackBody
	}

	return reply
}

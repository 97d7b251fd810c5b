package logging

import (
	"net/http"
	"time"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Middleware writes one access log entry per request.
type Middleware struct {
	logger *zap.Logger
}

// New creates a new logging middleware.
func New(logger *zap.Logger) *Middleware {
	return &Middleware{
		logger: logger.Named("access"),
	}
}

// AsHTTPMiddleware returns an http.Handler middleware for access logging.
func (m *Middleware) AsHTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(sw, r)

		m.log(r, sw, time.Since(start), nil)
	})
}

// AsRESTMiddleware returns a bunrouter middleware handler for access logging in the REST server.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		err := next(sw, req)

		m.log(req.Request, sw, time.Since(start), err)
		return err
	}
}

func (m *Middleware) log(r *http.Request, sw *statusWriter, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", sw.status),
		zap.Int("bytes", sw.bytes),
		zap.Duration("duration", duration),
		zap.String("remoteAddr", r.RemoteAddr),
	}

	switch {
	case err != nil:
		m.logger.Error("Request failed", append(fields, zap.Error(err))...)
	case sw.status >= http.StatusInternalServerError:
		m.logger.Warn("Request completed", fields...)
	default:
		m.logger.Info("Request completed", fields...)
	}
}

// statusWriter records the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

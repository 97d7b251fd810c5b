// Package handler exposes the guild stats endpoint as a serverless function.
package handler

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/robalyx/guildstats/internal/rest/middleware/logging"
	"github.com/robalyx/guildstats/internal/setup"
	"github.com/robalyx/guildstats/internal/setup/telemetry"
)

var (
	initOnce       sync.Once
	defaultHandler http.Handler
)

// initHandler builds the application once per function instance.
func initHandler() {
	app, err := setup.InitializeApp(context.Background(), telemetry.ServiceFunction, setup.Options{
		ReadEnvPerRequest: true,
	})
	if err != nil {
		log.Printf("Failed to initialize application: %v", err)
		defaultHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", http.MethodGet)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"Server configuration error","details":"Invalid configuration"}`))
		})

		return
	}

	defaultHandler = logging.New(app.Logger).AsHTTPMiddleware(app.StatsHandler)
}

// Handler is the entry point for Vercel's Go runtime.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(initHandler)
	defaultHandler.ServeHTTP(w, r)
}

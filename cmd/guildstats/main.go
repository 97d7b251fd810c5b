package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/guildstats/internal/rest"
	"github.com/robalyx/guildstats/internal/setup"
	"github.com/robalyx/guildstats/internal/setup/telemetry"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// Server timeouts.
const (
	ReadTimeout     = 5 * time.Second
	WriteTimeout    = 30 * time.Second
	ShutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "guildstats",
		Usage: "Serve Discord guild member and presence counts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Directory containing guildstats.toml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "host",
						Usage: "Listen host, overrides server.host",
					},
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Listen port, overrides server.port",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, c.String("config"), c.String("host"), c.Int("port"))
				},
			},
			{
				Name:  "fetch",
				Usage: "Fetch the guild stats once and print the reply",
				Action: func(ctx context.Context, c *cli.Command) error {
					return fetch(ctx, c.String("config"))
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// serve runs the REST server until SIGINT or SIGTERM.
func serve(ctx context.Context, configDir, host string, port int64) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceServer, setup.Options{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	if host == "" {
		host = app.Config.Server.Host
	}

	if port == 0 {
		port = int64(app.Config.Server.Port)
	}

	addr := fmt.Sprintf("%s:%d", host, port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      rest.NewServer(app.StatsHandler, app.Logger),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		app.Logger.Info("REST server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger.Info("Shutting down REST server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	app.Logger.Info("Server gracefully stopped")

	return nil
}

// fetch runs one GET through the handler and prints the reply body.
func fetch(ctx context.Context, configDir string) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceCLI, setup.Options{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	reply := app.StatsHandler.Handle(ctx, http.MethodGet)
	fmt.Println(string(reply.Body))

	if reply.Status != http.StatusOK {
		return fmt.Errorf("request failed with status %d", reply.Status)
	}

	return nil
}

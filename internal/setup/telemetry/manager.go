package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/robalyx/guildstats/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SentryFlushTimeout bounds how long Stop waits for queued Sentry events.
const SentryFlushTimeout = 2 * time.Second

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceServer ServiceType = iota
	ServiceFunction
	ServiceLambda
	ServiceCLI
)

// String returns the component name used in logs and telemetry.
func (s ServiceType) String() string {
	switch s {
	case ServiceServer:
		return "server"
	case ServiceFunction:
		return "function"
	case ServiceLambda:
		return "lambda"
	case ServiceCLI:
		return "cli"
	default:
		return "unknown"
	}
}

// Manager builds the application logger and owns the optional Sentry and
// OpenTelemetry exporters. File logging writes one timestamped directory per
// session and keeps only the most recent sessions.
type Manager struct {
	instanceID        string           // Unique identifier for this program instance
	serviceType       ServiceType      // Component identifier for this instance
	debug             config.Debug     // Logging configuration
	sentryCfg         config.Sentry    // Error reporting configuration
	telemetryCfg      config.Telemetry // Tracing configuration
	currentSessionDir string           // Path to the current session's log directory
	sentryEnabled     bool
	uptraceEnabled    bool
}

// NewManager creates a new Manager and initializes the configured exporters.
// Exporter failures are reported but do not prevent logging from working.
func NewManager(serviceType ServiceType, cfg *config.Config) (*Manager, error) {
	manager := &Manager{
		instanceID:   uuid.New().String(),
		serviceType:  serviceType,
		debug:        cfg.Debug,
		sentryCfg:    cfg.Sentry,
		telemetryCfg: cfg.Telemetry,
	}

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			ServerName:  manager.instanceID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}

		manager.sentryEnabled = true
	}

	if cfg.Telemetry.UptraceDSN != "" {
		uptrace.ConfigureOpentelemetry(
			uptrace.WithDSN(cfg.Telemetry.UptraceDSN),
			uptrace.WithServiceName(cfg.Telemetry.ServiceName),
			uptrace.WithServiceVersion(cfg.Telemetry.ServiceVersion),
			uptrace.WithDeploymentEnvironment(cfg.Sentry.Environment),
		)

		manager.uptraceEnabled = true
	}

	return manager, nil
}

// GetInstanceID returns the unique instance identifier for this program run.
func (lm *Manager) GetInstanceID() string {
	return lm.instanceID
}

// GetCurrentSessionDir returns the session log directory, or an empty string
// when file logging is disabled.
func (lm *Manager) GetCurrentSessionDir() string {
	return lm.currentSessionDir
}

// GetLogger builds the main application logger. Entries always go to stderr,
// additionally to a session file when a log directory is configured, and
// errors are forwarded to Sentry and OpenTelemetry when enabled.
func (lm *Manager) GetLogger() (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(lm.debug.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapLevel),
	}

	if lm.debug.LogDir != "" {
		if err := lm.setupLogDirectories(); err != nil {
			return nil, err
		}

		path := filepath.Join(lm.currentSessionDir, lm.serviceType.String()+".log")

		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
		}

		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), zapLevel))
	}

	if lm.sentryEnabled {
		cores = append(cores, NewSentryCore(zapcore.ErrorLevel))
	}

	if lm.uptraceEnabled {
		cores = append(cores, NewCore(zapcore.ErrorLevel))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("component", lm.serviceType.String()),
			zap.String("instance", lm.instanceID),
		),
	), nil
}

// Stop flushes the exporters. It should be called on application shutdown.
func (lm *Manager) Stop(ctx context.Context) error {
	if lm.sentryEnabled {
		sentry.Flush(SentryFlushTimeout)
	}

	if lm.uptraceEnabled {
		if err := uptrace.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown uptrace: %w", err)
		}
	}

	return nil
}

// setupLogDirectories ensures the base directory exists, rotates old
// sessions, and creates a new session directory.
func (lm *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(lm.debug.LogDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	lm.currentSessionDir = filepath.Join(lm.debug.LogDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(lm.currentSessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// rotateLogSessions removes the oldest sessions so that, together with the
// session about to be created, at most maxLogsToKeep remain.
func (lm *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(lm.debug.LogDir, "*"))
	if err != nil {
		return err
	}

	keep := max(lm.debug.MaxLogsToKeep-1, 0)
	if len(sessions) <= keep {
		return nil
	}

	// Oldest first
	sort.Slice(sessions, func(i, j int) bool {
		iInfo, iErr := os.Stat(sessions[i])
		jInfo, jErr := os.Stat(sessions[j])

		if iErr != nil || jErr != nil {
			return sessions[i] < sessions[j]
		}

		return iInfo.ModTime().Before(jInfo.ModTime())
	})

	for _, session := range sessions[:len(sessions)-keep] {
		if err := os.RemoveAll(session); err != nil {
			return err
		}
	}

	return nil
}

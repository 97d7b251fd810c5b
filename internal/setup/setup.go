package setup

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robalyx/guildstats/internal/cache"
	"github.com/robalyx/guildstats/internal/discord"
	"github.com/robalyx/guildstats/internal/redis"
	"github.com/robalyx/guildstats/internal/rest/handler"
	"github.com/robalyx/guildstats/internal/setup/config"
	"github.com/robalyx/guildstats/internal/setup/telemetry"
	"github.com/robalyx/guildstats/internal/stats"
	"github.com/robalyx/guildstats/pkg/utils"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config        // Application configuration
	Logger       *zap.Logger           // Main application logger
	RedisManager *redis.Manager        // Redis connection manager, nil unless the redis cache is used
	Store        cache.Store           // Result cache
	Discord      *discord.Client       // Discord REST client
	Stats        *stats.Service        // Guild statistics service
	StatsHandler *handler.StatsHandler // Transport-neutral HTTP handler
	LogManager   *telemetry.Manager    // Log management system
}

// Options adjusts how the application is initialized.
type Options struct {
	// ConfigDir restricts the config file search to one directory.
	ConfigDir string
	// ReadEnvPerRequest re-reads DISCORD_GUILD_ID and DISCORD_BOT_TOKEN on
	// every request instead of using the values loaded at startup.
	ReadEnvPerRequest bool
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, opts Options) (*App, error) {
	// Load app configuration
	cfg, configDir, err := config.LoadConfig(opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager, err := telemetry.NewManager(serviceType, cfg)
	if err != nil {
		return nil, err
	}

	logger, err := logManager.GetLogger()
	if err != nil {
		return nil, err
	}

	if configDir != "" {
		logger.Debug("Loaded config file", zap.String("dir", configDir))
	}

	// Result cache backend
	store, redisManager, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Discord client with per-request deadlines and optional retries
	httpClient, err := discord.NewHTTPClient(cfg.Discord.ProxyURL, 2*cfg.Discord.RequestTimeout)
	if err != nil {
		return nil, err
	}

	discordClient := discord.New(httpClient, discord.Options{
		APIBase:        cfg.Discord.APIBase,
		RequestTimeout: cfg.Discord.RequestTimeout,
		Retry: utils.GetUpstreamRetryOptions(
			cfg.Retry.MaxRetries,
			time.Duration(cfg.Retry.Delay)*time.Millisecond,
			time.Duration(cfg.Retry.MaxDelay)*time.Millisecond,
		),
	}, logger)

	credentials := stats.StaticCredentials(stats.Credentials{
		GuildID:  cfg.Discord.GuildID,
		BotToken: cfg.Discord.BotToken,
	})
	if opts.ReadEnvPerRequest {
		credentials = envCredentials(cfg.Discord)
	}

	service := stats.NewService(discordClient, store, credentials, stats.Options{
		TTL:          cfg.Cache.TTL,
		CDNBase:      cfg.Discord.CDNBase,
		KeyPrefix:    cfg.Cache.KeyPrefix,
		WriteTimeout: cfg.Cache.WriteTimeout,
		Coalesce:     cfg.Cache.Coalesce,
	}, logger)

	logger.Info("Initialized guild stats service",
		zap.String("cache", cfg.Cache.Type),
		zap.Duration("ttl", cfg.Cache.TTL),
		zap.Bool("coalesce", cfg.Cache.Coalesce),
		zap.Uint64("maxRetries", cfg.Retry.MaxRetries))

	// Bundle all initialized components
	return &App{
		Config:       cfg,
		Logger:       logger,
		RedisManager: redisManager,
		Store:        store,
		Discord:      discordClient,
		Stats:        service,
		StatsHandler: handler.NewStatsHandler(service, logger),
		LogManager:   logManager,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	if err := s.Store.Close(); err != nil {
		s.Logger.Error("Failed to close cache store", zap.Error(err))
	}

	// Flush exporters while the logger still works
	if err := s.LogManager.Stop(ctx); err != nil {
		s.Logger.Error("Failed to stop telemetry", zap.Error(err))
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	if s.RedisManager != nil {
		s.RedisManager.Close()
	}
}

// newStore creates the configured cache backend.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, *redis.Manager, error) {
	switch cfg.Cache.Type {
	case config.CacheMemory:
		return cache.NewMemory(cfg.Cache.TTL, cfg.Cache.CleanupInterval), nil, nil
	case config.CacheRedis:
		redisManager := redis.NewManager(&cfg.Redis, logger)

		// An unreachable Redis degrades to fetching fresh data, so only warn.
		// The store redials on later requests once the cooldown has passed.
		if err := redisManager.Ping(ctx, redis.CacheDBIndex); err != nil {
			logger.Warn("Redis cache is not reachable", zap.Error(err))
		}

		return cache.NewLazyRedis(redisManager.ClientFunc(redis.CacheDBIndex)), redisManager, nil
	case config.CacheNone:
		return cache.NewNoop(), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidCacheType, cfg.Cache.Type)
	}
}

// envCredentials reads the credential variables on every call and falls back
// to the loaded configuration when a variable is unset.
func envCredentials(discordCfg config.Discord) stats.CredentialsFunc {
	return func() stats.Credentials {
		creds := stats.Credentials{
			GuildID:  discordCfg.GuildID,
			BotToken: discordCfg.BotToken,
		}

		if v, ok := os.LookupEnv("DISCORD_GUILD_ID"); ok {
			creds.GuildID = v
		}

		if v, ok := os.LookupEnv("DISCORD_BOT_TOKEN"); ok {
			creds.BotToken = v
		}

		return creds
	}
}

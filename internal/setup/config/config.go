package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidCacheType      = errors.New("invalid cache type")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v1.0.0"

// CurrentVersion is the current version of the config file.
const CurrentVersion = 1

// FileName is the name of the optional config file searched on the config paths.
const FileName = "guildstats.toml"

// EnvPrefix is the prefix of environment variables that override dotted config keys.
// A double underscore separates key segments, e.g. GUILDSTATS_CACHE__TTL sets cache.ttl.
const EnvPrefix = "GUILDSTATS_"

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// credentialEnv maps the well-known deployment variables onto config keys.
var credentialEnv = map[string]string{
	"DISCORD_GUILD_ID":  "discord.guild_id",
	"DISCORD_BOT_TOKEN": "discord.bot_token",
}

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file. Zero when no file was loaded.
	Version   int       `koanf:"version"`
	Discord   Discord   `koanf:"discord"`
	Cache     Cache     `koanf:"cache"`
	Redis     Redis     `koanf:"redis"`
	Retry     Retry     `koanf:"retry"`
	Server    Server    `koanf:"server"`
	Debug     Debug     `koanf:"debug"`
	Sentry    Sentry    `koanf:"sentry"`
	Telemetry Telemetry `koanf:"telemetry"`
}

// Discord contains the upstream API settings and credentials.
type Discord struct {
	// Guild whose statistics are served.
	GuildID string `koanf:"guild_id"`
	// Bot token sent as "Authorization: Bot <token>".
	BotToken string `koanf:"bot_token"`
	// Base URL of the REST API including the version segment.
	APIBase string `koanf:"api_base"`
	// Base URL of the CDN used for guild icons.
	CDNBase string `koanf:"cdn_base"`
	// Deadline applied to each outbound request.
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// Optional outbound HTTP proxy URL.
	ProxyURL string `koanf:"proxy_url"`
}

// Cache contains the result cache settings.
type Cache struct {
	// Backend type (none, memory, redis).
	Type string `koanf:"type"`
	// Lifetime of a cached result.
	TTL time.Duration `koanf:"ttl"`
	// Optional prefix prepended to every cache key.
	KeyPrefix string `koanf:"key_prefix"`
	// Interval at which the memory backend purges expired entries.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	// Timeout of the cache write that follows a fresh fetch.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// Share one upstream fetch between concurrent misses.
	Coalesce bool `koanf:"coalesce"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// Minimum wait before dialing again after a failed connection attempt.
	RedialInterval time.Duration `koanf:"redial_interval"`
}

// Retry contains retry configuration for the required guild fetch.
type Retry struct {
	// Maximum number of retries. Zero disables retrying.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial delay between retries in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum delay between retries in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// Server contains the long-running HTTP server settings.
type Server struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Debug contains logging configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Write session log files to this directory. Empty disables file logging.
	LogDir string `koanf:"log_dir"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// Sentry contains error reporting configuration.
type Sentry struct {
	DSN         string `koanf:"dsn"`
	Environment string `koanf:"environment"`
}

// Telemetry contains OpenTelemetry export configuration.
type Telemetry struct {
	// Uptrace DSN. Empty leaves the global no-op tracer in place.
	UptraceDSN     string `koanf:"uptrace_dsn"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"discord.api_base":        "https://discord.com/api/v10",
		"discord.cdn_base":        "https://cdn.discordapp.com",
		"discord.request_timeout": 10 * time.Second,
		"cache.type":              CacheNone,
		"cache.ttl":               300 * time.Second,
		"cache.cleanup_interval":  10 * time.Minute,
		"cache.write_timeout":     2 * time.Second,
		"cache.coalesce":          true,
		"redis.host":              "localhost",
		"redis.port":              6379,
		"redis.redial_interval":   5 * time.Second,
		"retry.max_retries":       0,
		"retry.delay":             250,
		"retry.max_delay":         2000,
		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"debug.log_level":         "info",
		"debug.max_logs_to_keep":  10,
		"telemetry.service_name":  "guildstats",
	}
}

// LoadConfig loads the configuration from defaults, an optional config file and
// the environment, in that order of precedence. An empty configDir searches the
// default config paths. It returns the directory the file was loaded from, or
// an empty string when no file was found.
func LoadConfig(configDir string) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	usedConfigPath := ""
	for _, path := range configPaths(configDir) {
		configPath := fmt.Sprintf("%s/%s", path, FileName)
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error loading %s: %w", configPath, err)
		}

		usedConfigPath = path
		break
	}

	if err := loadEnv(k); err != nil {
		return nil, "", err
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if usedConfigPath != "" {
		if err := checkConfigVersion(config.Version, CurrentVersion); err != nil {
			return nil, "", err
		}
	}

	if err := config.Cache.validate(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// loadEnv applies the credential variables and the prefixed overrides.
func loadEnv(k *koanf.Koanf) error {
	err := k.Load(env.Provider("DISCORD_", ".", func(s string) string {
		return credentialEnv[s]
	}), nil)
	if err != nil {
		return fmt.Errorf("failed to load discord environment: %w", err)
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return fmt.Errorf("failed to load environment overrides: %w", err)
	}

	return nil
}

// configPaths returns the directories searched for the config file.
func configPaths(configDir string) []string {
	if configDir != "" {
		return []string{configDir}
	}

	paths := []string{".guildstats"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, homeDir+"/.guildstats/config")
	}

	return append(paths, "/etc/guildstats/config", "/app/config", "config", ".")
}

func (c *Cache) validate() error {
	switch c.Type {
	case CacheNone, CacheMemory, CacheRedis:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected %s, %s or %s)", ErrInvalidCacheType, c.Type, CacheNone, CacheMemory, CacheRedis)
	}
}

func checkConfigVersion(current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s", ErrConfigVersionMissing, FileName)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/guildstats/tree/%s/config/%s",
			ErrConfigVersionMismatch,
			FileName,
			current,
			expected,
			RepositoryVersion,
			FileName,
		)
	}

	return nil
}

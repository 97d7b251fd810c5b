// Package stats serves guild statistics with a cache-aside read path and a
// stale-on-error fallback.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/guildstats/internal/cache"
	"github.com/robalyx/guildstats/internal/discord"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = 300 * time.Second
	DefaultCDNBase      = "https://cdn.discordapp.com"
	DefaultWriteTimeout = 2 * time.Second
)

// Options configures a Service.
type Options struct {
	// TTL of cached results.
	TTL time.Duration
	// CDNBase is the root of guild icon URLs.
	CDNBase string
	// KeyPrefix is prepended to every cache key.
	KeyPrefix string
	// WriteTimeout bounds the cache write after a fresh fetch.
	WriteTimeout time.Duration
	// Coalesce shares one fetch between concurrent misses for the same guild.
	Coalesce bool
}

// Service produces guild statistics.
type Service struct {
	fetcher     Fetcher
	store       cache.Store
	credentials CredentialsFunc
	opts        Options
	group       singleflight.Group
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewService creates a new statistics service.
func NewService(fetcher Fetcher, store cache.Store, credentials CredentialsFunc, opts Options, logger *zap.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.CDNBase == "" {
		opts.CDNBase = DefaultCDNBase
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	opts.CDNBase = strings.TrimRight(opts.CDNBase, "/")

	return &Service{
		fetcher:     fetcher,
		store:       store,
		credentials: credentials,
		opts:        opts,
		logger:      logger.Named("stats"),
		tracer:      otel.Tracer("github.com/robalyx/guildstats/internal/stats"),
	}
}

// CacheKey returns the cache key holding the statistics of a guild.
func CacheKey(prefix, guildID string) string {
	return prefix + "guild-" + guildID + "-stats"
}

// Stats returns the statistics of the configured guild. Results come from the
// cache when present, otherwise from Discord. When Discord fails, previously
// cached data is served with a warning. Errors are either *ConfigError or
// *FetchError.
func (s *Service) Stats(ctx context.Context) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "stats.Stats")
	defer span.End()

	creds, err := s.validate()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := CacheKey(s.opts.KeyPrefix, creds.GuildID)
	span.SetAttributes(attribute.String("guild.id", creds.GuildID))

	if result, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))

		result.Cached = true
		return result, nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err := s.refresh(ctx, key, creds)
	if err == nil {
		s.logger.Debug("Fetched fresh data",
			zap.String("guildID", creds.GuildID),
			zap.Int("count", result.Count))

		return result, nil
	}

	// Same lookup as the fast path; expiry is left to the store
	if stale, ok := s.lookup(ctx, key); ok {
		s.logger.Warn("Serving stale data after fetch failure",
			zap.String("guildID", creds.GuildID),
			zap.Error(err))
		span.SetAttributes(attribute.Bool("stale", true))

		stale.Cached = true
		stale.Warning = StaleWarning

		return stale, nil
	}

	s.logger.Error("Failed to fetch guild stats",
		zap.String("guildID", creds.GuildID),
		zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, "fetch failed")

	return nil, &FetchError{Err: err}
}

// validate resolves the credentials and checks that both are present, ID first.
func (s *Service) validate() (Credentials, error) {
	creds := s.credentials()

	if creds.GuildID == "" {
		return creds, &ConfigError{Details: DetailsMissingGuildID}
	}

	if creds.BotToken == "" {
		return creds, &ConfigError{Details: DetailsMissingBotToken}
	}

	return creds, nil
}

// lookup reads and decodes a cached result. Store and decode failures count
// as a miss.
func (s *Service) lookup(ctx context.Context, key string) (*Result, bool) {
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	if !ok {
		return nil, false
	}

	// Entries written without a success flag are still successful results
	result := Result{Success: true}
	if err := sonic.Unmarshal(value, &result); err != nil {
		s.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return &result, true
}

// refresh fetches a fresh result, sharing the work with concurrent callers
// for the same key when coalescing is enabled.
func (s *Service) refresh(ctx context.Context, key string, creds Credentials) (*Result, error) {
	if !s.opts.Coalesce {
		return s.fetch(ctx, key, creds)
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// The shared fetch must outlive any single waiter
		return s.fetch(context.WithoutCancel(ctx), key, creds)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		result := *res.Val.(*Result)
		return &result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for guild fetch: %w", ctx.Err())
	}
}

// fetch requests guild and widget data concurrently, assembles the result
// and writes it to the cache.
func (s *Service) fetch(ctx context.Context, key string, creds Credentials) (*Result, error) {
	// Discord would reject a malformed ID anyway
	if _, err := snowflake.Parse(creds.GuildID); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidGuildID, creds.GuildID, err)
	}

	var (
		guild    *discord.Guild
		guildErr error
		widget   *discord.Widget
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		guild, guildErr = s.fetcher.Guild(ctx, creds.GuildID, creds.BotToken)
	})
	wg.Go(func() {
		widget = s.presence(ctx, creds)
	})

	if recovered := wg.WaitAndRecover(); recovered != nil {
		return nil, recovered.AsError()
	}

	if guildErr != nil {
		return nil, guildErr
	}

	result := s.assemble(creds.GuildID, guild, widget)
	s.save(ctx, key, result)

	return result, nil
}

// presence fetches the optional widget. Failures are never propagated.
func (s *Service) presence(ctx context.Context, creds Credentials) *discord.Widget {
	widget, err := s.fetcher.Widget(ctx, creds.GuildID, creds.BotToken)
	if err != nil {
		s.logger.Debug("Presence data unavailable",
			zap.String("guildID", creds.GuildID),
			zap.Error(err))

		return nil
	}

	return widget
}

func (s *Service) assemble(guildID string, guild *discord.Guild, widget *discord.Widget) *Result {
	result := &Result{
		Success:     true,
		Count:       max(guild.ApproximateMemberCount, 0),
		Online:      max(guild.ApproximatePresenceCount, 0),
		Name:        guild.Name,
		PremiumTier: guild.PremiumTier,
	}

	if guild.Icon != nil && *guild.Icon != "" {
		icon := fmt.Sprintf("%s/icons/%s/%s.png", s.opts.CDNBase, guildID, *guild.Icon)
		result.Icon = &icon
	}

	if widget != nil {
		result.Presence = presenceValue(widget.Presences)
	}

	return result
}

// save writes the result to the cache on a best-effort basis.
func (s *Service) save(ctx context.Context, key string, result *Result) {
	encoded, err := sonic.Marshal(result)
	if err != nil {
		s.logger.Warn("Failed to encode result for cache", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()

	if err := s.store.Set(ctx, key, encoded, s.opts.TTL); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// presenceValue returns nil for absent or falsy presence payloads.
func presenceValue(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)

	switch string(trimmed) {
	case "", "null", "false", "0", `""`:
		return nil
	default:
		return trimmed
	}
}

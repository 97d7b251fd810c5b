// Package discord fetches guild information from the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/robalyx/guildstats/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxResponseSize caps how much of a response body is read.
const MaxResponseSize = 1 << 20

// DefaultAPIBase is the versioned REST API root.
const DefaultAPIBase = "https://discord.com/api/v10"

// Options configures a Client.
type Options struct {
	// APIBase is the versioned REST API root. Defaults to DefaultAPIBase.
	APIBase string
	// RequestTimeout bounds each individual request. Zero means no deadline.
	RequestTimeout time.Duration
	// Retry controls retries of the guild request. Zero MaxRetries disables them.
	Retry utils.RetryOptions
	// UserAgent overrides the default user agent.
	UserAgent string
}

// Client performs authenticated guild requests against the REST API.
type Client struct {
	http    *http.Client
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer
	baseURL string
}

// New creates a new Discord client.
func New(httpClient *http.Client, opts Options, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}

	if opts.UserAgent == "" {
		opts.UserAgent = "DiscordBot (https://github.com/robalyx/guildstats, 1.0)"
	}

	return &Client{
		http:    httpClient,
		opts:    opts,
		logger:  logger.Named("discord"),
		tracer:  otel.Tracer("github.com/robalyx/guildstats/internal/discord"),
		baseURL: strings.TrimRight(opts.APIBase, "/"),
	}
}

// Guild fetches the guild with approximate member and presence counts.
// A non-success status is returned as *APIError.
func (c *Client) Guild(ctx context.Context, guildID, token string) (*Guild, error) {
	ctx, span := c.tracer.Start(ctx, "discord.Guild", trace.WithAttributes(attribute.String("guild.id", guildID)))
	defer span.End()

	guild, err := c.guildWithRetry(ctx, guildID, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "guild request failed")

		return nil, err
	}

	return guild, nil
}

// Widget fetches the guild widget. Callers treat any error as absent data.
func (c *Client) Widget(ctx context.Context, guildID, token string) (*Widget, error) {
	ctx, span := c.tracer.Start(ctx, "discord.Widget", trace.WithAttributes(attribute.String("guild.id", guildID)))
	defer span.End()

	var widget Widget

	endpoint := fmt.Sprintf("%s/guilds/%s/widget.json", c.baseURL, url.PathEscape(guildID))
	if err := c.get(ctx, endpoint, token, &widget); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			err = fmt.Errorf("%w: %w", ErrWidgetUnavailable, apiErr)
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "widget request failed")

		return nil, err
	}

	return &widget, nil
}

func (c *Client) guildWithRetry(ctx context.Context, guildID, token string) (*Guild, error) {
	endpoint := fmt.Sprintf("%s/guilds/%s?with_counts=true", c.baseURL, url.PathEscape(guildID))

	fetch := func() (*Guild, error) {
		var guild Guild
		if err := c.get(ctx, endpoint, token, &guild); err != nil {
			return nil, err
		}
		return &guild, nil
	}

	if c.opts.Retry.MaxRetries == 0 {
		return fetch()
	}

	attempt := 0

	return utils.WithRetry(ctx, func() (*Guild, error) {
		attempt++

		guild, err := fetch()
		if err == nil {
			return guild, nil
		}

		var apiErr *APIError
		if (errors.As(err, &apiErr) && !apiErr.Temporary()) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}

		c.logger.Debug("Retrying guild request",
			zap.String("guildID", guildID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		return nil, err
	}, c.opts.Retry)
}

// get performs one GET request under the configured deadline and decodes
// a successful JSON response into out.
func (c *Client) get(ctx context.Context, endpoint, token string, out any) error {
	if token == "" {
		return ErrMissingToken
	}

	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Discord request completed",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

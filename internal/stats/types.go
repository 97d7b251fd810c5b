package stats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/robalyx/guildstats/internal/discord"
)

// StaleWarning is attached to results served from cache after a failed fetch.
const StaleWarning = "Serving potentially stale data"

// Configuration error details.
const (
	DetailsMissingGuildID  = "Missing DISCORD_GUILD_ID"
	DetailsMissingBotToken = "Missing DISCORD_BOT_TOKEN"
)

var (
	// ErrConfiguration matches every *ConfigError.
	ErrConfiguration = errors.New("server configuration error")
	// ErrInvalidGuildID is the cause of a fetch for a guild ID that is not a
	// Discord snowflake.
	ErrInvalidGuildID = errors.New("invalid guild id")
)

// ConfigError reports a missing or malformed credential.
type ConfigError struct {
	Details string
}

func (e *ConfigError) Error() string {
	return "server configuration error: " + e.Details
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// FetchError reports a failed guild fetch with no cached data to fall back on.
// Its message is the message of the underlying cause.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Credentials identify the guild and authorize requests for it.
type Credentials struct {
	GuildID  string
	BotToken string
}

// CredentialsFunc resolves credentials on every request.
type CredentialsFunc func() Credentials

// StaticCredentials returns a CredentialsFunc that always yields creds.
func StaticCredentials(creds Credentials) CredentialsFunc {
	return func() Credentials { return creds }
}

// Fetcher retrieves guild data from Discord.
type Fetcher interface {
	Guild(ctx context.Context, guildID, token string) (*discord.Guild, error)
	Widget(ctx context.Context, guildID, token string) (*discord.Widget, error)
}

// Result is the statistics payload returned to clients. Cached results are
// stored without the Cached and Warning fields.
type Result struct {
	Success     bool            `json:"success"`
	Count       int             `json:"count"`
	Online      int             `json:"online"`
	Name        string          `json:"name"`
	Icon        *string         `json:"icon"`
	PremiumTier int             `json:"premium_tier"`
	Presence    json.RawMessage `json:"presence"`
	Cached      bool            `json:"cached,omitempty"`
	Warning     string          `json:"warning,omitempty"`
}

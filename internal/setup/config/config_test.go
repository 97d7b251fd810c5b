package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalyx/guildstats/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "")
	t.Setenv("DISCORD_BOT_TOKEN", "")

	cfg, path, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, path)
	assert.Equal(t, "https://discord.com/api/v10", cfg.Discord.APIBase)
	assert.Equal(t, "https://cdn.discordapp.com", cfg.Discord.CDNBase)
	assert.Equal(t, 10*time.Second, cfg.Discord.RequestTimeout)
	assert.Equal(t, config.CacheNone, cfg.Cache.Type)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Coalesce)
	assert.Equal(t, uint64(0), cfg.Retry.MaxRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Debug.LogLevel)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "123456789012345678")
	t.Setenv("DISCORD_BOT_TOKEN", "secret")
	t.Setenv("DISCORD_UNRELATED", "ignored")
	t.Setenv("GUILDSTATS_CACHE__TYPE", "memory")
	t.Setenv("GUILDSTATS_CACHE__TTL", "1m")
	t.Setenv("GUILDSTATS_SERVER__PORT", "9090")

	cfg, _, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "123456789012345678", cfg.Discord.GuildID)
	assert.Equal(t, "secret", cfg.Discord.BotToken)
	assert.Equal(t, config.CacheMemory, cfg.Cache.Type)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "")
	t.Setenv("DISCORD_BOT_TOKEN", "")

	dir := t.TempDir()
	content := `version = 1

[discord]
guild_id = "42"
request_timeout = "3s"

[cache]
type = "redis"
key_prefix = "prod:"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o600))

	cfg, path, err := config.LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, path)
	assert.Equal(t, "42", cfg.Discord.GuildID)
	assert.Equal(t, 3*time.Second, cfg.Discord.RequestTimeout)
	assert.Equal(t, config.CacheRedis, cfg.Cache.Type)
	assert.Equal(t, "prod:", cfg.Cache.KeyPrefix)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
}

func TestLoadConfigEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "99")
	t.Setenv("DISCORD_BOT_TOKEN", "")

	dir := t.TempDir()
	content := "version = 1\n\n[discord]\nguild_id = \"42\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o600))

	cfg, _, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "99", cfg.Discord.GuildID)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "")
	t.Setenv("DISCORD_BOT_TOKEN", "")

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing version",
			content: "[cache]\ntype = \"memory\"\n",
			wantErr: config.ErrConfigVersionMissing,
		},
		{
			name:    "version mismatch",
			content: "version = 7\n",
			wantErr: config.ErrConfigVersionMismatch,
		},
		{
			name:    "unknown cache type",
			content: "version = 1\n\n[cache]\ntype = \"memcached\"\n",
			wantErr: config.ErrInvalidCacheType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(tt.content), 0o600))

			_, _, err := config.LoadConfig(dir)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

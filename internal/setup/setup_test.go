package setup_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/robalyx/guildstats/internal/cache"
	"github.com/robalyx/guildstats/internal/setup"
	"github.com/robalyx/guildstats/internal/setup/telemetry"
	"github.com/robalyx/guildstats/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discordStub(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/guilds/123456789012345678" {
			_, _ = w.Write([]byte(`{"id":"123456789012345678","name":"Stub","approximate_member_count":9}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	return server
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guildstats.toml"), []byte(content), 0o600))

	return dir
}

func TestInitializeAppMemoryCache(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "123456789012345678")
	t.Setenv("DISCORD_BOT_TOKEN", "token")

	stub := discordStub(t)
	dir := writeConfig(t, fmt.Sprintf("version = 1\n\n[discord]\napi_base = %q\n\n[cache]\ntype = \"memory\"\n", stub.URL))

	app, err := setup.InitializeApp(t.Context(), telemetry.ServiceCLI, setup.Options{ConfigDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { app.Cleanup(t.Context()) })

	assert.IsType(t, &cache.Memory{}, app.Store)
	assert.Nil(t, app.RedisManager)

	first, err := app.Stats.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 9, first.Count)
	assert.False(t, first.Cached)

	second, err := app.Stats.Stats(t.Context())
	require.NoError(t, err)
	assert.True(t, second.Cached)
}

func TestInitializeAppRedisCache(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "123456789012345678")
	t.Setenv("DISCORD_BOT_TOKEN", "token")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	stub := discordStub(t)
	dir := writeConfig(t, fmt.Sprintf(
		"version = 1\n\n[discord]\napi_base = %q\n\n[cache]\ntype = \"redis\"\n\n[redis]\nhost = %q\nport = %s\n",
		stub.URL, mr.Host(), mr.Port()))

	app, err := setup.InitializeApp(t.Context(), telemetry.ServiceServer, setup.Options{ConfigDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { app.Cleanup(t.Context()) })

	require.NotNil(t, app.RedisManager)

	_, err = app.Stats.Stats(t.Context())
	require.NoError(t, err)

	assert.True(t, mr.Exists(stats.CacheKey("", "123456789012345678")))
}

func TestInitializeAppRedisDown(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "123456789012345678")
	t.Setenv("DISCORD_BOT_TOKEN", "token")

	mr, err := miniredis.Run()
	require.NoError(t, err)

	host, port := mr.Host(), mr.Port()
	mr.Close()

	stub := discordStub(t)
	dir := writeConfig(t, fmt.Sprintf(
		"version = 1\n\n[discord]\napi_base = %q\n\n[cache]\ntype = \"redis\"\n\n[redis]\nhost = %q\nport = %s\n",
		stub.URL, host, port))

	app, err := setup.InitializeApp(t.Context(), telemetry.ServiceServer, setup.Options{ConfigDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { app.Cleanup(t.Context()) })

	assert.IsType(t, &cache.Redis{}, app.Store)

	// Every request is served fresh while the cache is unreachable
	for range 2 {
		result, err := app.Stats.Stats(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 9, result.Count)
		assert.False(t, result.Cached)
		assert.Empty(t, result.Warning)
	}

	reply := app.StatsHandler.Handle(t.Context(), http.MethodOptions)
	assert.Equal(t, http.StatusOK, reply.Status)
}

func TestInitializeAppReadsEnvPerRequest(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "")
	t.Setenv("DISCORD_BOT_TOKEN", "")

	stub := discordStub(t)
	dir := writeConfig(t, fmt.Sprintf("version = 1\n\n[discord]\napi_base = %q\n", stub.URL))

	app, err := setup.InitializeApp(t.Context(), telemetry.ServiceFunction, setup.Options{
		ConfigDir:         dir,
		ReadEnvPerRequest: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { app.Cleanup(t.Context()) })

	_, err = app.Stats.Stats(t.Context())
	require.ErrorIs(t, err, stats.ErrConfiguration)

	t.Setenv("DISCORD_GUILD_ID", "123456789012345678")
	t.Setenv("DISCORD_BOT_TOKEN", "token")

	result, err := app.Stats.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Stub", result.Name)
}

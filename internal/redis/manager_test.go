package redis_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/robalyx/guildstats/internal/redis"
	"github.com/robalyx/guildstats/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManagerGetClient(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	manager := redis.NewManager(&config.Redis{Host: host, Port: port}, zaptest.NewLogger(t))
	t.Cleanup(manager.Close)

	client, err := manager.GetClient(redis.CacheDBIndex)
	require.NoError(t, err)

	again, err := manager.GetClient(redis.CacheDBIndex)
	require.NoError(t, err)
	assert.Same(t, client, again)

	ctx := t.Context()
	require.NoError(t, client.Do(ctx, client.B().Set().Key("k").Value("v").Build()).Error())

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	manager := redis.NewManager(&config.Redis{Host: host, Port: port}, zaptest.NewLogger(t))

	_, err = manager.GetClient(redis.CacheDBIndex)
	require.NoError(t, err)

	manager.Close()
	manager.Close()
}

func TestManagerRedialsAfterInterval(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	// Connections are refused until the server is restarted
	mr.Close()

	manager := redis.NewManager(&config.Redis{
		Host:           host,
		Port:           port,
		RedialInterval: 200 * time.Millisecond,
	}, zaptest.NewLogger(t))
	t.Cleanup(manager.Close)

	_, err = manager.GetClient(redis.CacheDBIndex)
	require.Error(t, err)
	assert.NotErrorIs(t, err, redis.ErrUnavailable)

	// Inside the cooldown no dial is attempted
	_, err = manager.GetClient(redis.CacheDBIndex)
	require.ErrorIs(t, err, redis.ErrUnavailable)
	require.ErrorIs(t, manager.Ping(t.Context(), redis.CacheDBIndex), redis.ErrUnavailable)

	require.NoError(t, mr.Restart())
	t.Cleanup(mr.Close)

	assert.Eventually(t, func() bool {
		return manager.Ping(t.Context(), redis.CacheDBIndex) == nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestManagerClientFunc(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	manager := redis.NewManager(&config.Redis{Host: mr.Host(), Port: port}, zaptest.NewLogger(t))
	t.Cleanup(manager.Close)

	direct, err := manager.GetClient(redis.CacheDBIndex)
	require.NoError(t, err)

	viaFunc, err := manager.ClientFunc(redis.CacheDBIndex)()
	require.NoError(t, err)
	assert.Same(t, direct, viaFunc)
}

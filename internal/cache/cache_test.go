package cache_test

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/guildstats/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedis starts a miniredis server and returns a store backed by it.
func setupRedis(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return cache.NewRedis(client), mr
}

func TestStoresRoundTrip(t *testing.T) {
	t.Parallel()

	redisStore, _ := setupRedis(t)

	tests := []struct {
		name  string
		store cache.Store
	}{
		{name: "memory", store: cache.NewMemory(time.Minute, time.Minute)},
		{name: "redis", store: redisStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()

			_, ok, err := tt.store.Get(ctx, "guild-1-stats")
			require.NoError(t, err)
			assert.False(t, ok)

			payload := []byte(`{"success":true,"count":10}`)
			require.NoError(t, tt.store.Set(ctx, "guild-1-stats", payload, time.Minute))

			got, ok, err := tt.store.Get(ctx, "guild-1-stats")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, string(payload), string(got))

			// Last write wins
			updated := []byte(`{"success":true,"count":11}`)
			require.NoError(t, tt.store.Set(ctx, "guild-1-stats", updated, time.Minute))

			got, ok, err = tt.store.Get(ctx, "guild-1-stats")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, string(updated), string(got))
		})
	}
}

func TestNoopNeverHits(t *testing.T) {
	t.Parallel()

	store := cache.NewNoop()
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "key", []byte("value"), time.Minute))

	value, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
	require.NoError(t, store.Close())
}

func TestMemoryExpiry(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory(time.Minute, time.Minute)
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "key", []byte("value"), 20*time.Millisecond))

	assert.Eventually(t, func() bool {
		_, ok, err := store.Get(ctx, "key")
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCopiesValues(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory(time.Minute, time.Minute)
	ctx := t.Context()

	value := []byte("value")
	require.NoError(t, store.Set(ctx, "key", value, time.Minute))
	value[0] = 'X'

	got, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", string(got))
}

func TestMemoryClosed(t *testing.T) {
	t.Parallel()

	store := cache.NewMemory(time.Minute, time.Minute)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, _, err := store.Get(t.Context(), "key")
	require.ErrorIs(t, err, cache.ErrStoreClosed)
	require.ErrorIs(t, store.Set(t.Context(), "key", nil, time.Minute), cache.ErrStoreClosed)
}

func TestRedisExpiry(t *testing.T) {
	t.Parallel()

	store, mr := setupRedis(t)
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "key", []byte("value"), 300*time.Second))
	assert.Equal(t, 300*time.Second, mr.TTL("key"))

	mr.FastForward(301 * time.Second)

	_, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	t.Parallel()

	store, mr := setupRedis(t)
	mr.SetError("server down")

	_, _, err := store.Get(t.Context(), "key")
	require.Error(t, err)

	err = store.Set(t.Context(), "key", []byte("value"), time.Minute)
	require.Error(t, err)
}

func TestLazyRedisClientUnavailable(t *testing.T) {
	t.Parallel()

	errDown := errors.New("no connection")
	store := cache.NewLazyRedis(func() (rueidis.Client, error) {
		return nil, errDown
	})

	_, ok, err := store.Get(t.Context(), "key")
	require.ErrorIs(t, err, errDown)
	assert.False(t, ok)

	require.ErrorIs(t, store.Set(t.Context(), "key", []byte("value"), time.Minute), errDown)
	require.NoError(t, store.Close())
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisClientFunc resolves the client for each operation.
type RedisClientFunc func() (rueidis.Client, error)

// Redis is a Store backed by a Redis database. Expiry is delegated to
// Redis through SET EX.
type Redis struct {
	client RedisClientFunc
}

// NewRedis creates a store on the given client. The client is owned by the
// caller and is not closed by Close.
func NewRedis(client rueidis.Client) *Redis {
	return NewLazyRedis(func() (rueidis.Client, error) { return client, nil })
}

// NewLazyRedis creates a store that resolves its client per operation. A
// failure to obtain a client is reported like any other backend error.
func NewLazyRedis(client RedisClientFunc) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	client, err := r.client()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	value, err := client.Do(ctx, client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	client, err := r.client()
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	} else {
		cmd = client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}

	if err := client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

func (r *Redis) Close() error {
	return nil
}

package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores the blob as a plain string value.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	blob, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot/redis: get: %w", err)
	}
	return blob, nil
}

func (r *Redis) Save(ctx context.Context, key string, blob []byte) error {
	if err := r.client.Set(ctx, key, blob, 0).Err(); err != nil {
		return fmt.Errorf("snapshot/redis: set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("snapshot/redis: del: %w", err)
	}
	return nil
}

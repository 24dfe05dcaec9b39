package shared

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "procura:idempotency:"

// IdempotencyStore remembers processed request keys in Redis until they expire.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore constructs the store. ttl defaults to 24h.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

func idempotencyKey(key, module string) (string, error) {
	if key == "" {
		return "", errors.New("idempotency key required")
	}
	if module == "" {
		return "", errors.New("idempotency module required")
	}
	return idempotencyPrefix + module + ":" + key, nil
}

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.client == nil {
		return errors.New("idempotency store not initialised")
	}
	k, err := idempotencyKey(key, module)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil || s.client == nil {
		return nil
	}
	k, err := idempotencyKey(key, module)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, k).Err()
}

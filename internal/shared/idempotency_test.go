package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "abc", "requisitions"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "abc", "requisitions"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "abc", "forecasts"))

	require.NoError(t, store.Delete(ctx, "abc", "requisitions"))
	require.NoError(t, store.CheckAndInsert(ctx, "abc", "requisitions"))

	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.CheckAndInsert(ctx, "abc", "forecasts"))

	require.Error(t, store.CheckAndInsert(ctx, "", "forecasts"))
	require.Error(t, store.CheckAndInsert(ctx, "k", ""))

	var nilStore *IdempotencyStore
	require.Error(t, nilStore.CheckAndInsert(ctx, "k", "m"))
	require.NoError(t, nilStore.Delete(ctx, "k", "m"))
}

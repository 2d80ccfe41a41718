package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jupiterclapton/atelier/internal/core/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore vérifie le contrat commun aux deux implémentations.
func exerciseStore(t *testing.T, store ports.IdempotencyStore) {
	ctx := context.Background()
	key := uuid.NewString()

	ok, err := store.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must lose")

	resp, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, resp, "in-flight request has no response yet")

	want := ports.StoredResponse{Status: 200, Body: []byte(`{"isFollowing":true}`)}
	require.NoError(t, store.Save(ctx, key, want, time.Minute))

	resp, err = store.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, want, *resp)

	require.NoError(t, store.Release(ctx, key))
	ok, err = store.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	exerciseStore(t, NewMemoryIdempotencyStore())
}

func TestMemoryIdempotencyStore_Expires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	ok, _ := store.Reserve(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = store.Reserve(ctx, "k", time.Second)
	assert.True(t, ok)
}

func TestMemoryIdempotencyStore_SweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		_, err := store.Reserve(ctx, k, time.Second)
		require.NoError(t, err)
	}
	require.NoError(t, store.Save(ctx, "c", ports.StoredResponse{Status: 200}, time.Second))

	now = now.Add(2 * sweepInterval)
	ok, err := store.Reserve(ctx, "d", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, store.entries, 1, "only the fresh reservation is kept")
}

func TestMemoryIdempotencyStore_LoadDropsExpiredResponse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "k", ports.StoredResponse{Status: 200}, time.Second))
	now = now.Add(2 * time.Second)

	resp, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, store.entries)
}

// Nécessite un Redis : REDIS_ADDR=localhost:6379 go test ./...
func TestRedisIdempotencyStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	store := NewRedisIdempotencyStore(client)
	exerciseStore(t, store)

	// Le marqueur garde le TTL court de Reserve ; Save pose le TTL long.
	ctx := context.Background()
	key := uuid.NewString()
	ok, err := store.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ttl, err := client.TTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, store.Save(ctx, key, ports.StoredResponse{Status: 200}, 24*time.Hour))
	ttl, err = client.TTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
}

package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"swaft/internal/backend"
	"swaft/internal/backend/memory"
	"swaft/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, string) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Skipping test: redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fmt.Sprintf("test:profile:%s:", uuid.NewString())
}

func TestCache_GetProfile(t *testing.T) {
	client, prefix := setupRedis(t)
	ctx := context.Background()
	store := memory.NewStore()
	cache := NewCache(store, client, prefix, time.Minute)

	id := uuid.New()
	store.PutProfile(model.Profile{ID: id, Nickname: "neo"})

	p, err := cache.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "neo", p.Nickname)

	// Second read is served from Redis.
	store.ResetCalls()
	p, err = cache.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "neo", p.Nickname)
	assert.Empty(t, store.Calls())
}

func TestCache_UpsertInvalidates(t *testing.T) {
	client, prefix := setupRedis(t)
	ctx := context.Background()
	store := memory.NewStore()
	cache := NewCache(store, client, prefix, time.Minute)

	id := uuid.New()
	store.PutProfile(model.Profile{ID: id, Nickname: "neo"})
	_, err := cache.GetProfile(ctx, id)
	require.NoError(t, err)

	require.NoError(t, cache.UpsertProfile(ctx, model.Profile{ID: id, Nickname: "trinity"}))

	p, err := cache.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "trinity", p.Nickname)
}

func TestCache_NotFoundIsNotCached(t *testing.T) {
	client, prefix := setupRedis(t)
	ctx := context.Background()
	store := memory.NewStore()
	cache := NewCache(store, client, prefix, time.Minute)

	id := uuid.New()
	_, err := cache.GetProfile(ctx, id)
	assert.True(t, errors.Is(err, backend.ErrNotFound))

	n, err := client.Exists(ctx, prefix+id.String()).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_UpsertErrorSkipsInvalidation(t *testing.T) {
	client, prefix := setupRedis(t)
	ctx := context.Background()
	store := memory.NewStore()
	cache := NewCache(store, client, prefix, time.Minute)

	id := uuid.New()
	store.PutProfile(model.Profile{ID: id, Nickname: "neo"})
	_, err := cache.GetProfile(ctx, id)
	require.NoError(t, err)

	boom := errors.New("boom")
	store.FailNext("upsert_profile", boom)
	assert.ErrorIs(t, cache.UpsertProfile(ctx, model.Profile{ID: id, Nickname: "x"}), boom)

	n, err := client.Exists(ctx, prefix+id.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

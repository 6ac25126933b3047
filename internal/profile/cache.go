package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultCachePrefix = "profile:"
	DefaultCacheTTL    = 5 * time.Minute
)

// Cache is a cache-aside layer in front of a ProfileStore. Redis failures
// degrade to the underlying store.
type Cache struct {
	next   backend.ProfileStore
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ backend.ProfileStore = (*Cache)(nil)

func NewCache(next backend.ProfileStore, client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{next: next, client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

func (c *Cache) GetProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == nil {
		var p model.Profile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("profile cache get: %v", err)
	}

	p, err := c.next.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
			log.Printf("profile cache set: %v", err)
		}
	}
	return p, nil
}

func (c *Cache) UpsertProfile(ctx context.Context, p model.Profile) error {
	if err := c.next.UpsertProfile(ctx, p); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.key(p.ID)).Err(); err != nil {
		log.Printf("profile cache invalidate: %v", err)
	}
	return nil
}

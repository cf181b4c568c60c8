package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 24 * time.Hour
	maxJitter  = 30 // minutes
)

type snapshot struct {
	Items     []domain.LineItem `json:"items"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: defaultTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	key := cacheKey(sessionID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s snapshot
	if err2 := json.Unmarshal(data, &s); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return s.Items, nil
}

// Set stores the snapshot. An empty cart deletes the key instead.
func (r RedisCache) Set(ctx context.Context, sessionID string, items []domain.LineItem) error {
	if len(items) == 0 {
		return r.Delete(ctx, sessionID)
	}

	key := cacheKey(sessionID)
	jsonCart, err := json.Marshal(snapshot{Items: items, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(maxJitter)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, key, string(jsonCart), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, sessionID string) error {
	key := cacheKey(sessionID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

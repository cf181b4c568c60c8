// Package cache keeps session cart snapshots outside the gateway process.
package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_storefront/domain"
)

type CartCache interface {
	Get(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	Set(ctx context.Context, sessionID string, items []domain.LineItem) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// NoopCache is used when no Redis is configured. Every Get is a miss.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]domain.LineItem, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Set(context.Context, string, []domain.LineItem) error { return nil }

func (NoopCache) Delete(context.Context, string) error { return nil }

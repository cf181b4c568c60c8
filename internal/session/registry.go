// Package session keeps the per-session cart and checkout state of the gateway.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/cart"
	"github.com/fjod/go_storefront/internal/checkout"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultIdleTTL = 30 * time.Minute

// OrchestratorFactory builds the checkout orchestrator of one session cart.
type OrchestratorFactory func(local checkout.LocalCart) *checkout.Orchestrator

type entry struct {
	cart         *cart.Store
	orchestrator *checkout.Orchestrator
	lastSeen     time.Time
}

type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithIdleTTL sets how long an untouched session stays in memory.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

type Registry struct {
	cache           cache.CartCache
	newOrchestrator OrchestratorFactory
	logger          *zap.Logger
	idleTTL         time.Duration
	now             func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	sfg     singleflight.Group // collapses concurrent loads of one session
}

func NewRegistry(c cache.CartCache, factory OrchestratorFactory, opts ...Option) *Registry {
	r := &Registry{
		cache:           c,
		newOrchestrator: factory,
		logger:          zap.NewNop(),
		idleTTL:         defaultIdleTTL,
		now:             time.Now,
		entries:         make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cart returns the cart of sessionID, restoring it from the cache on first use.
func (r *Registry) Cart(ctx context.Context, sessionID string) (*cart.Store, error) {
	e, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.cart, nil
}

// Orchestrator returns the checkout orchestrator bound to the session cart.
func (r *Registry) Orchestrator(ctx context.Context, sessionID string) (*checkout.Orchestrator, error) {
	e, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.orchestrator, nil
}

// Save writes the current cart of sessionID to the cache.
func (r *Registry) Save(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.cache.Set(ctx, sessionID, e.cart.Items())
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) load(ctx context.Context, sessionID string) (*entry, error) {
	if sessionID == "" {
		return nil, errors.New("empty session id")
	}
	if e := r.lookup(sessionID); e != nil {
		return e, nil
	}

	v, err, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		if e := r.lookup(sessionID); e != nil {
			return e, nil
		}

		store := cart.NewStore()
		items, err := r.cache.Get(ctx, sessionID)
		switch {
		case err == nil:
			if rerr := store.Restore(items); rerr != nil {
				r.logger.Warn("dropped invalid cart entries", zap.String("session_id", sessionID), zap.Error(rerr))
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			// log cache error but continue with an empty cart
			r.logger.Warn("cache get error", zap.String("session_id", sessionID), zap.Error(err))
		}

		e := &entry{
			cart:         store,
			orchestrator: r.newOrchestrator(store),
			lastSeen:     r.now(),
		}
		r.mu.Lock()
		r.entries[sessionID] = e
		r.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (r *Registry) lookup(sessionID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if ok {
		e.lastSeen = r.now()
	}
	return e
}

// Evict drops sessions idle for longer than the idle TTL. Sessions with a
// checkout in flight are kept.
func (r *Registry) Evict() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		if e.lastSeen.After(cutoff) {
			continue
		}
		if e.orchestrator.Status().Status == domain.CheckoutStatusSubmitting {
			continue
		}
		delete(r.entries, id)
		evicted++
	}
	return evicted
}

// Invalidate drops the in-memory state of sessionID so the next request
// reloads its cart from the cache. It is a no-op while a checkout is running
// and for the instance whose orchestrator produced checkoutID.
func (r *Registry) Invalidate(sessionID, checkoutID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return false
	}
	st := e.orchestrator.Status()
	if st.Status == domain.CheckoutStatusSubmitting {
		return false
	}
	if st.Result != nil && st.Result.CheckoutID == checkoutID {
		return false
	}
	delete(r.entries, sessionID)
	return true
}

// RunCleanup evicts idle sessions every interval until ctx is done.
func (r *Registry) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := r.Evict(); n > 0 {
				r.logger.Debug("evicted idle sessions", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

package cache

import (
	"context"
	"time"

	"github.com/S-Corkum/agent-router/internal/resilience"
)

// ResilientCache wraps a Cache with an infrastructure circuit breaker so
// a failing Redis degrades to cache misses instead of stalling callers.
type ResilientCache struct {
	inner    Cache
	breakers *resilience.Manager
}

// NewResilientCache wraps the given cache
func NewResilientCache(inner Cache, breakers *resilience.Manager) *ResilientCache {
	return &ResilientCache{inner: inner, breakers: breakers}
}

// Get retrieves a value through the breaker. A miss is a successful
// call as far as the breaker is concerned; only transport failures count
// against it.
func (c *ResilientCache) Get(ctx context.Context, key string, value interface{}) error {
	found, err := c.breakers.Execute(ctx, resilience.RedisCircuitBreaker, func() (interface{}, error) {
		err := c.inner.Get(ctx, key, value)
		if err == ErrNotFound {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return err
	}
	if !found.(bool) {
		return ErrNotFound
	}
	return nil
}

// Set stores a value through the breaker
func (c *ResilientCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	_, err := c.breakers.Execute(ctx, resilience.RedisCircuitBreaker, func() (interface{}, error) {
		return nil, c.inner.Set(ctx, key, value, ttl)
	})
	return err
}

// Delete removes a key through the breaker
func (c *ResilientCache) Delete(ctx context.Context, key string) error {
	_, err := c.breakers.Execute(ctx, resilience.RedisCircuitBreaker, func() (interface{}, error) {
		return nil, c.inner.Delete(ctx, key)
	})
	return err
}

// Exists checks a key through the breaker
func (c *ResilientCache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.breakers.Execute(ctx, resilience.RedisCircuitBreaker, func() (interface{}, error) {
		return c.inner.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Close closes the underlying cache
func (c *ResilientCache) Close() error {
	return c.inner.Close()
}

var _ Cache = (*ResilientCache)(nil)

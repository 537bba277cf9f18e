package intel

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/hunt/internal/retry"
)

// Fetcher is the feed contract the cache wraps.
type Fetcher interface {
	FetchIndicators(ctx context.Context) ([]Indicator, error)
}

// Cache serves indicators from memory, refreshing from the upstream fetcher
// once the TTL elapses. Shared across pipeline runs, so it is internally
// synchronized.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	policy  retry.Policy

	mu        sync.Mutex
	items     []Indicator
	fetchedAt time.Time

	now func() time.Time
}

// NewCache wraps fetcher with a TTL-bounded refresh. Fetches go through the
// given retry policy.
func NewCache(fetcher Fetcher, ttl time.Duration, policy retry.Policy) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		policy:  policy,
		now:     time.Now,
	}
}

// Indicators returns the cached feed, refreshing it first when stale. On
// refresh failure a non-empty stale feed is served rather than erroring.
func (c *Cache) Indicators(ctx context.Context) ([]Indicator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.items != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.items, nil
	}

	var fresh []Indicator
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var ferr error
		fresh, ferr = c.fetcher.FetchIndicators(ctx)
		return ferr
	})
	if err != nil {
		if c.items != nil {
			return c.items, nil
		}
		return nil, err
	}

	c.items = fresh
	c.fetchedAt = c.now()
	return c.items, nil
}

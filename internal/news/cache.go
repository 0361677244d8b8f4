package news

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
)

// Cache keeps headlines for ttl. Concurrent misses for the same query share
// one upstream fetch, and an expired entry is served when a refresh fails.
type Cache struct {
	src   interfaces.HeadlineSource
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	headlines []string
	fetchedAt time.Time
}

var _ interfaces.HeadlineSource = (*Cache)(nil)

func NewCache(src interfaces.HeadlineSource, ttl time.Duration) *Cache {
	return &Cache{src: src, ttl: ttl, now: time.Now, entries: map[string]cacheEntry{}}
}

func cacheKey(query string, limit int) string {
	return fmt.Sprintf("%s|%d", query, limit)
}

func (c *Cache) lookup(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) Headlines(ctx context.Context, query string, limit int) ([]string, error) {
	key := cacheKey(query, limit)
	cached, ok := c.lookup(key)
	if ok && c.now().Sub(cached.fetchedAt) < c.ttl {
		return cached.headlines, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		h, err := c.src.Headlines(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		c.store(key, h)
		return h, nil
	})
	if err != nil {
		if ok {
			logger.Warn(ctx, "Headline refresh failed, serving stale entry", "query", query, "age", c.now().Sub(cached.fetchedAt), "error", err)
			return cached.headlines, nil
		}
		return nil, err
	}
	return v.([]string), nil
}

func (c *Cache) store(key string, h []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		// keep stale entries around for a while as an error fallback
		if now.Sub(e.fetchedAt) > 4*c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{headlines: h, fetchedAt: now}
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}

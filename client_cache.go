package goOffline

import (
	"context"
	"strings"
	"time"

	"github.com/courierlab/goOffline/storage"
)

// cacheResponse records a successful GET body under its path with an
// endpoint-specific expiry. Concurrent writes for the same path are
// last-write-wins with no merge. Important endpoints are additionally
// stored durably for offline reads.
func (c *Client) cacheResponse(ctx context.Context, path string, data []byte) {
	now := c.now()
	expires := now.Add(c.ttlFor(path))

	c.mu.Lock()
	c.cache[path] = cacheEntry{data: data, timestamp: now, expires: expires}
	c.mu.Unlock()

	if !c.isImportant(path) {
		return
	}

	err := c.store.Put(ctx, path, storage.Entry{
		Data:      data,
		Timestamp: now.UnixMilli(),
		Expires:   expires.UnixMilli(),
	})
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("durable cache write failed")
	}
}

// fromCache serves path from the memory cache, falling through to the
// durable store for important endpoints. Expiry is checked at read time;
// an expired memory entry is purged opportunistically.
func (c *Client) fromCache(ctx context.Context, path string) (*Response, bool) {
	c.mu.Lock()
	entry, ok := c.cache[path]
	if ok {
		if c.now().Before(entry.expires) {
			c.mu.Unlock()
			return &Response{StatusCode: 200, Data: entry.data, FromCache: true}, true
		}
		delete(c.cache, path)
	}
	c.mu.Unlock()

	if c.isImportant(path) {
		if stored, err := c.store.Get(ctx, path); err == nil {
			return &Response{StatusCode: 200, Data: stored.Data, FromCache: true}, true
		}
	}

	return nil, false
}

// ttlFor classifies the endpoint: tracking 5 m, location 1 m, identity
// 30 m, analytics 1 h, everything else the default (values from config).
func (c *Client) ttlFor(path string) time.Duration {
	switch {
	case strings.Contains(path, "/track"):
		return c.config.Cache.TrackTTL
	case strings.Contains(path, "/location"):
		return c.config.Cache.LocationTTL
	case strings.Contains(path, "/me") || strings.Contains(path, "/profile"):
		return c.config.Cache.IdentityTTL
	case strings.Contains(path, "/analytics"):
		return c.config.Cache.AnalyticsTTL
	default:
		return c.config.Cache.DefaultTTL
	}
}

func (c *Client) isImportant(path string) bool {
	return containsAny(path, c.config.Cache.ImportantPaths)
}

// CleanupCache purges expired entries from both cache layers. Idempotent:
// running it twice leaves the same surviving set as running it once.
// Advisory only — expired entries are already rejected at read time.
func (c *Client) CleanupCache(ctx context.Context) (removed int, err error) {
	if c.isClosed() {
		return 0, ErrClientClosed
	}

	now := c.now()
	c.mu.Lock()
	for path, entry := range c.cache {
		if !now.Before(entry.expires) {
			delete(c.cache, path)
			removed++
		}
	}
	c.mu.Unlock()

	durable, err := c.store.DeleteExpired(ctx)
	removed += durable
	if err != nil {
		// Memory was still cleaned; report what happened.
		return removed, err
	}

	return removed, nil
}

// CacheStats reports entry counts across the memory cache, the durable
// store, and the offline queue.
func (c *Client) CacheStats(ctx context.Context) (CacheStats, error) {
	if c.isClosed() {
		return CacheStats{}, ErrClientClosed
	}

	var stats CacheStats

	now := c.now()
	c.mu.Lock()
	stats.MemoryEntries = len(c.cache)
	for _, entry := range c.cache {
		if !now.Before(entry.expires) {
			stats.MemoryExpired++
		}
	}
	c.mu.Unlock()

	deliveries, actions, err := c.store.Counts(ctx)
	if err != nil {
		return stats, err
	}
	stats.DurableEntries = deliveries
	stats.QueuedActions = actions

	return stats, nil
}

// housekeeping runs the hourly advisory cleanup until Close.
func (c *Client) housekeeping() {
	ticker := time.NewTicker(c.config.Cache.HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if _, err := c.CleanupCache(context.Background()); err != nil {
				c.log.Warn().Err(err).Msg("cache housekeeping failed")
			}
		}
	}
}

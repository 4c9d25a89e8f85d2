package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/angas/elprice/types"
	"github.com/zeromicro/go-zero/core/collection"
	"golang.org/x/sync/singleflight"
)

// Shared fetches outlive the caller that started them, but not forever.
const fetchTimeout = 30 * time.Second

type FetchFunc func(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error)

type window struct {
	start, end time.Time
}

func (w window) overlaps(start, end time.Time) bool {
	return w.start.Before(end) && start.Before(w.end)
}

// RangeCache keeps the results of recent range queries. A nil *RangeCache
// is valid and caches nothing.
type RangeCache struct {
	mu      sync.Mutex
	cache   *collection.Cache
	windows map[string]window
	size    int
	gen     uint64
	group   singleflight.Group
}

// NewRangeCache returns nil when size is zero or less.
func NewRangeCache(size int, ttl time.Duration) (*RangeCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := collection.NewCache(ttl, collection.WithLimit(size), collection.WithName("price-ranges"))
	if err != nil {
		return nil, fmt.Errorf("create range cache: %w", err)
	}
	return &RangeCache{
		cache:   c,
		windows: make(map[string]window),
		size:    size,
	}, nil
}

func key(start, end time.Time) string {
	return start.UTC().Format(time.RFC3339) + "/" + end.UTC().Format(time.RFC3339)
}

// Load returns the cached window or fetches it. Concurrent loads of the same
// window share one fetch. Callers get their own copy of the slice.
func (c *RangeCache) Load(ctx context.Context, start, end time.Time, fetch FetchFunc) ([]types.PriceRecord, error) {
	if c == nil {
		return fetch(ctx, start, end)
	}

	k := key(start, end)
	if v, ok := c.cache.Get(k); ok {
		return slices.Clone(v.([]types.PriceRecord)), nil
	}

	// The fetch is shared, so one caller giving up must not fail the others.
	ch := c.group.DoChan(k, func() (any, error) {
		gen := c.generation()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		records, err := fetch(fctx, start, end)
		if err != nil {
			return nil, err
		}
		c.put(k, window{start: start, end: end}, gen, records)
		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]types.PriceRecord)), nil
	}
}

// Invalidate drops every cached window overlapping [start, end). Loads that
// were in flight when it was called won't be cached.
func (c *RangeCache) Invalidate(start, end time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.prune()
	for k, w := range c.windows {
		if w.overlaps(start, end) {
			c.cache.Del(k)
			delete(c.windows, k)
		}
	}
}

// prune forgets windows the cache has expired or evicted. Must hold mu.
func (c *RangeCache) prune() {
	for k := range c.windows {
		if _, ok := c.cache.Get(k); !ok {
			delete(c.windows, k)
		}
	}
}

// Len reports how many windows are tracked.
func (c *RangeCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func (c *RangeCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *RangeCache) put(k string, w window, gen uint64, records []types.PriceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.cache.Set(k, records)
	c.windows[k] = w
	if len(c.windows) > c.size {
		c.prune()
	}
}

package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"pkghub/pkg/logging"
	"pkghub/pkg/problems"
)

const (
	defaultSize        = 8192
	defaultPositiveTTL = 15 * time.Minute
	defaultNegativeTTL = 60 * time.Second
)

// Key identifies one cached entity: which adapter owns it, what kind it is,
// and its id (optionally id+version).
type Key struct {
	Adapter string
	Kind    string
	ID      string
}

func (k Key) String() string {
	return k.Adapter + "\x00" + k.Kind + "\x00" + k.ID
}

// Config tunes one metadata cache instance.
type Config struct {
	// Size bounds the number of entries; LRU eviction applies beyond it.
	Size int

	// PositiveTTL is how long successful fetch results are served.
	PositiveTTL time.Duration

	// NegativeTTL is how long upstream 404s are remembered, absorbing
	// thundering herds on missing packages.
	NegativeTTL time.Duration

	// GraceTTL optionally extends expired positive entries: within the grace
	// window stale data is served while a refresh runs in the background.
	// Zero disables grace serving.
	GraceTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = defaultSize
	}
	if c.PositiveTTL <= 0 {
		c.PositiveTTL = defaultPositiveTTL
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = defaultNegativeTTL
	}
	return c
}

// FetchFunc loads the value for a key from upstream. It must honor ctx.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type entry struct {
	value     interface{}
	fetchedAt time.Time
	negative  bool
	detail    string
}

// Cache is the process-local metadata cache shared by one adapter: bounded
// LRU storage, TTLs with negative caching, and single-flight coalescing so
// concurrent misses for the same key share one upstream round trip.
type Cache struct {
	config Config
	store  *lru.Cache[string, entry]
	group  singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a Cache. The configuration is normalized with defaults.
func New(config Config) (*Cache, error) {
	config = config.withDefaults()
	c := &Cache{config: config}
	store, err := lru.NewWithEvict[string, entry](config.Size, func(string, entry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache store: %w", err)
	}
	c.store = store
	return c, nil
}

// GetOrFetch returns the cached value for key or fetches it. Waiters that
// lose their context detach without cancelling the shared fetch for others.
// Upstream not-found results are cached for the negative TTL; any other
// fetch error propagates uncached.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (interface{}, error) {
	k := key.String()
	now := time.Now()

	if e, ok := c.store.Get(k); ok {
		age := now.Sub(e.fetchedAt)
		if e.negative {
			if age < c.config.NegativeTTL {
				c.hits.Add(1)
				return nil, problems.NotFound("%s", e.detail)
			}
		} else {
			if age < c.config.PositiveTTL {
				c.hits.Add(1)
				return e.value, nil
			}
			if c.config.GraceTTL > 0 && age < c.config.PositiveTTL+c.config.GraceTTL {
				c.hits.Add(1)
				go c.refresh(key, fetch)
				return e.value, nil
			}
		}
		c.store.Remove(k)
	}

	c.misses.Add(1)
	return c.await(ctx, key, fetch)
}

// Stats returns the hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Purge drops every entry. Used by tests and adapter index refreshes that
// invalidate wholesale.
func (c *Cache) Purge() {
	c.store.Purge()
}

func (c *Cache) await(ctx context.Context, key Key, fetch FetchFunc) (interface{}, error) {
	k := key.String()
	ch := c.group.DoChan(k, func() (interface{}, error) {
		// The fetch runs on a detached context so a cancelled waiter does
		// not abort the flight for the others.
		return c.fill(context.WithoutCancel(ctx), key, fetch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Cache) fill(ctx context.Context, key Key, fetch FetchFunc) (interface{}, error) {
	value, err := fetch(ctx)
	if err != nil {
		if p, ok := problems.As(err); ok && p.Kind() == problems.KindNotFound {
			c.store.Add(key.String(), entry{
				fetchedAt: time.Now(),
				negative:  true,
				detail:    p.Detail,
			})
		}
		return nil, err
	}
	c.store.Add(key.String(), entry{value: value, fetchedAt: time.Now()})
	return value, nil
}

func (c *Cache) refresh(key Key, fetch FetchFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		return c.fill(ctx, key, fetch)
	}); err != nil {
		logging.Debug("Cache", "background refresh of %s failed: %v", key.ID, err)
	}
}

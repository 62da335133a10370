package backends

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// listing maps installed package names to their versions.
type listing map[string]string

// listFunc produces a fresh listing. ok is false if the manager itself is
// not installed, in which case every package counts as absent.
type listFunc func(ctx context.Context) (l listing, ok bool, err error)

// listingCache keeps one listing per key for the life of a run, so a catalog
// with forty brew formulae runs `brew list` once. Installs invalidate the key.
type listingCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, listing]
}

func newListingCache(size int) *listingCache {
	cache, err := lru.New[string, listing](size)
	if err != nil {
		panic(fmt.Sprintf("listing cache: %v", err))
	}
	return &listingCache{cache: cache}
}

// get returns the cached listing for key, loading it on a miss. A missing
// manager yields an empty listing that is not cached.
func (c *listingCache) get(ctx context.Context, key string, load listFunc) (listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.cache.Get(key); ok {
		return l, nil
	}

	l, ok, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return listing{}, nil
	}

	c.cache.Add(key, l)
	return l, nil
}

// invalidate drops the cached listing for key.
func (c *listingCache) invalidate(key string) {
	c.cache.Remove(key)
}

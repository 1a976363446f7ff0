package entity

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of entities a CachedSource keeps.
const DefaultCacheSize = 1000

// CachedSource wraps a Source with an LRU cache of fetched entities.
// Writers must Invalidate ids they change so searches never return a stale
// entity.
type CachedSource[ID comparable, E Indexable[ID]] struct {
	inner Source[ID, E]
	cache *lru.Cache[ID, E]
}

// NewCachedSource wraps inner with a cache of size entries.
func NewCachedSource[ID comparable, E Indexable[ID]](inner Source[ID, E], size int) *CachedSource[ID, E] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[ID, E](size)
	return &CachedSource[ID, E]{inner: inner, cache: cache}
}

// ListAll implements Source. Listing bypasses the cache.
func (c *CachedSource[ID, E]) ListAll(ctx context.Context) ([]E, error) {
	return c.inner.ListAll(ctx)
}

// ByIDs implements Source. Cached entities are served directly; the rest
// are fetched from the inner source in one call.
func (c *CachedSource[ID, E]) ByIDs(ctx context.Context, ids []ID) ([]E, error) {
	missing := make([]ID, 0, len(ids))
	for _, id := range ids {
		if !c.cache.Contains(id) {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		fetched, err := c.inner.ByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, e := range fetched {
			c.cache.Add(e.IndexID(), e)
		}
	}

	out := make([]E, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.cache.Get(id); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByID implements Source.
func (c *CachedSource[ID, E]) ByID(ctx context.Context, id ID) (E, bool, error) {
	if e, ok := c.cache.Get(id); ok {
		return e, true, nil
	}
	e, ok, err := c.inner.ByID(ctx, id)
	if err != nil || !ok {
		return e, ok, err
	}
	c.cache.Add(id, e)
	return e, true, nil
}

// Invalidate drops id from the cache.
func (c *CachedSource[ID, E]) Invalidate(id ID) {
	c.cache.Remove(id)
}

// Purge empties the cache.
func (c *CachedSource[ID, E]) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached entities.
func (c *CachedSource[ID, E]) Len() int {
	return c.cache.Len()
}

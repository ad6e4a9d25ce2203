package sqlstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// cacheKey joins prefix and the URL-path escaped segments with "::".
func cacheKey(prefix string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, prefix)
	for _, segment := range segments {
		parts = append(parts, url.PathEscape(segment))
	}
	return strings.Join(parts, "::")
}

// readThrough fills a go-repository-cache service from a base store. Values
// are cloned on the way in and out so callers never share cached maps or
// pointers. Filled keys are remembered for evictAll.
type readThrough[V any] struct {
	cache repositorycache.CacheService
	clone func(V) V

	mu   sync.Mutex
	keys map[string]struct{}
}

func newReadThrough[V any](cache repositorycache.CacheService, clone func(V) V) *readThrough[V] {
	if clone == nil {
		clone = func(v V) V { return v }
	}
	return &readThrough[V]{cache: cache, clone: clone, keys: map[string]struct{}{}}
}

func (r *readThrough[V]) get(ctx context.Context, key string, fetch func(context.Context) (V, error)) (V, error) {
	value, err := repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (V, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return fetched, err
		}
		return r.clone(fetched), nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	r.mu.Lock()
	r.keys[key] = struct{}{}
	r.mu.Unlock()
	return r.clone(value), nil
}

func (r *readThrough[V]) evict(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
	return r.cache.Delete(ctx, key)
}

func (r *readThrough[V]) evictAll(ctx context.Context) error {
	r.mu.Lock()
	keys := r.keys
	r.keys = map[string]struct{}{}
	r.mu.Unlock()

	var errs []error
	for key := range keys {
		if err := r.cache.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

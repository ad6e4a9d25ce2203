package sqlstore

import (
	"context"
	"fmt"
	"maps"

	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const rateLimitStateCacheKeyPrefix = "go-feishu::ratelimit_state::v1"

// CachedRateLimitStateStore serves BeforeCall checks from a cache service.
// AfterCall writes go to the base store and evict the bucket's entry.
type CachedRateLimitStateStore struct {
	base   ratelimit.StateStore
	reader *readThrough[ratelimit.State]
}

func NewCachedRateLimitStateStore(
	base ratelimit.StateStore,
	cacheService repositorycache.CacheService,
) (*CachedRateLimitStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{
		base:   base,
		reader: newReadThrough(cacheService, cloneRateLimitState),
	}, nil
}

// RateLimitStateCacheKey returns
// go-feishu::ratelimit_state::v1::<provider>::<scope_type>::<app_id>::<bucket>
// after normalizing the key.
func RateLimitStateCacheKey(key core.RateLimitKey) (string, error) {
	key = ratelimit.NormalizeKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return "", err
	}
	return cacheKey(rateLimitStateCacheKeyPrefix, key.ProviderID, key.ScopeType, key.ScopeID, key.BucketKey), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if err := s.ready(); err != nil {
		return ratelimit.State{}, err
	}
	key = ratelimit.NormalizeKey(key)
	entry, err := RateLimitStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	return s.reader.get(ctx, entry, func(ctx context.Context) (ratelimit.State, error) {
		return s.base.Get(ctx, key)
	})
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if err := s.ready(); err != nil {
		return err
	}
	state = cloneRateLimitState(state)
	entry, err := RateLimitStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.reader.evict(ctx, entry)
}

func (s *CachedRateLimitStateStore) ready() error {
	if s == nil || s.base == nil || s.reader == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	return nil
}

// cloneRateLimitState deep copies state so cached entries stay immutable.
func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	cloned := state
	cloned.Key = ratelimit.NormalizeKey(state.Key)
	cloned.Metadata = maps.Clone(state.Metadata)
	if state.ResetAt != nil {
		resetAt := state.ResetAt.UTC()
		cloned.ResetAt = &resetAt
	}
	if state.ThrottledUntil != nil {
		until := state.ThrottledUntil.UTC()
		cloned.ThrottledUntil = &until
	}
	if state.RetryAfter != nil {
		retry := *state.RetryAfter
		cloned.RetryAfter = &retry
	}
	return cloned
}

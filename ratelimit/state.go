package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-feishu/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

const (
	ProviderIDFeishu = "feishu"
	ScopeTypeApp     = "app"
	BucketTaskAPI    = "task_api"
	BucketAuth       = "auth"

	// MetadataAPICode carries the envelope code so a throttled response on
	// HTTP 200 still opens a throttle window.
	MetadataAPICode = "api_code"

	// RemainingUnknown marks a window where the gateway sent no remaining
	// counter, so a reset header alone never blocks calls.
	RemainingUnknown = -1
)

// AppKey scopes a bucket to one app id, which is how the open platform
// meters calls. An empty bucket means the task API.
func AppKey(appID string, bucket string) core.RateLimitKey {
	if strings.TrimSpace(bucket) == "" {
		bucket = BucketTaskAPI
	}
	return core.RateLimitKey{
		ProviderID: ProviderIDFeishu,
		ScopeType:  ScopeTypeApp,
		ScopeID:    strings.TrimSpace(appID),
		BucketKey:  bucket,
	}
}

// NormalizeKey trims every segment and lowercases all but the app id.
func NormalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		ProviderID: strings.TrimSpace(strings.ToLower(key.ProviderID)),
		ScopeType:  strings.TrimSpace(strings.ToLower(key.ScopeType)),
		ScopeID:    strings.TrimSpace(key.ScopeID),
		BucketKey:  strings.TrimSpace(strings.ToLower(key.BucketKey)),
	}
}

// State is the last observed window of one bucket.
type State struct {
	Key            core.RateLimitKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// blockedFor reports how long calls must still wait at now.
func (s State) blockedFor(now time.Time) (time.Duration, bool) {
	if s.ThrottledUntil != nil && now.Before(*s.ThrottledUntil) {
		return s.ThrottledUntil.Sub(now), true
	}
	if s.Remaining == 0 && s.ResetAt != nil && now.Before(*s.ResetAt) {
		return s.ResetAt.Sub(now), true
	}
	return 0, false
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// MemoryStateStore keeps windows for a single process.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[core.RateLimitKey]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[core.RateLimitKey]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[NormalizeKey(key)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = maps.Clone(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = NormalizeKey(state.Key)
	state.Metadata = maps.Clone(state.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Key] = state
	return nil
}

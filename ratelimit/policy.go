package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
)

// ThrottledError is returned by BeforeCall while a bucket is inside its
// window.
type ThrottledError struct {
	ProviderID string
	BucketKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: provider %q bucket %q throttled for %s",
		strings.TrimSpace(e.ProviderID),
		strings.TrimSpace(e.BucketKey),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"provider_id": strings.TrimSpace(e.ProviderID),
		"bucket_key":  strings.TrimSpace(e.BucketKey),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return core.ServiceError(goerrors.CategoryRateLimit, e.Error(), nil, metadata)
}

// AdaptivePolicy blocks calls while a bucket is throttled and learns the
// window from every response. Without a Retry-After hint the window grows
// exponentially from InitialBackoff up to MaxBackoff.
type AdaptivePolicy struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, NormalizeKey(key))
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if wait, blocked := state.blockedFor(p.now()); blocked {
		return ThrottledError{ProviderID: state.Key.ProviderID, BucketKey: state.Key.BucketKey, RetryAfter: wait}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ProviderResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = NormalizeKey(key)
	state, err := p.Store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{Key: key}
	case err != nil:
		return err
	}

	now := p.now()
	signal := readGatewaySignal(res, now)
	p.apply(&state, signal, now)
	if len(res.Metadata) > 0 {
		if state.Metadata == nil {
			state.Metadata = map[string]any{}
		}
		maps.Copy(state.Metadata, res.Metadata)
	}
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) apply(state *State, signal gatewaySignal, now time.Time) {
	state.LastStatus = signal.status
	state.UpdatedAt = now
	state.Remaining = signal.remaining
	if signal.hasLimit {
		state.Limit = signal.limit
	}
	if !signal.resetAt.IsZero() {
		resetAt := signal.resetAt
		state.ResetAt = &resetAt
	}
	state.RetryAfter = nil
	if signal.retryAfter > 0 {
		retryAfter := signal.retryAfter
		state.RetryAfter = &retryAfter
	}

	if !signal.throttled() {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return
	}
	state.Attempts++
	wait := signal.retryAfter
	if wait <= 0 {
		wait = p.backoff(state.Attempts)
	}
	until := now.Add(wait)
	state.ThrottledUntil = &until
}

// backoff doubles from InitialBackoff on every consecutive throttle.
func (p *AdaptivePolicy) backoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	ceiling := p.MaxBackoff
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	shift := max(attempt-1, 0)
	if shift >= 32 || initial > ceiling>>shift {
		return ceiling
	}
	return initial << shift
}

func (p *AdaptivePolicy) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.RateLimitPolicy = (*AdaptivePolicy)(nil)

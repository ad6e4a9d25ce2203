package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// rateLimitUpsertColumns are overwritten when a bucket row already exists.
var rateLimitUpsertColumns = []string{
	"request_limit",
	"remaining",
	"reset_at",
	"retry_after_seconds",
	"throttled_until",
	"last_status",
	"attempts",
	"metadata",
	"updated_at",
}

// RateLimitStateStore shares throttle windows across processes that use the
// same app id. One row per (provider, scope, app id, bucket).
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{db: db, repo: repo}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = ratelimit.NormalizeKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return ratelimit.State{}, err
	}
	record := &rateLimitStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", key.ProviderID).
		Where("?TableAlias.scope_type = ?", key.ScopeType).
		Where("?TableAlias.scope_id = ?", key.ScopeID).
		Where("?TableAlias.bucket_key = ?", key.BucketKey).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	if err != nil {
		return ratelimit.State{}, err
	}
	return record.toDomain(), nil
}

// Upsert writes the bucket row in one statement, relying on the unique
// index over the key columns.
func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	record := newRateLimitStateRecord(state)

	query := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_id, scope_type, scope_id, bucket_key) DO UPDATE")
	for _, column := range rateLimitUpsertColumns {
		query = query.Set(column + " = EXCLUDED." + column)
	}
	_, err := query.Exec(ctx)
	return err
}

func newRateLimitStateRecord(state ratelimit.State) *rateLimitStateRecord {
	metadata := maps.Clone(state.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	record := &rateLimitStateRecord{
		ID:         uuid.NewString(),
		ProviderID: state.Key.ProviderID,
		ScopeType:  state.Key.ScopeType,
		ScopeID:    state.Key.ScopeID,
		BucketKey:  state.Key.BucketKey,
		Limit:      state.Limit,
		Remaining:  state.Remaining,
		LastStatus: state.LastStatus,
		Attempts:   state.Attempts,
		Metadata:   metadata,
		CreatedAt:  state.UpdatedAt.UTC(),
		UpdatedAt:  state.UpdatedAt.UTC(),
	}
	if state.ResetAt != nil {
		resetAt := state.ResetAt.UTC()
		record.ResetAt = &resetAt
	}
	if state.ThrottledUntil != nil {
		until := state.ThrottledUntil.UTC()
		record.ThrottledUntil = &until
	}
	if state.RetryAfter != nil && *state.RetryAfter > 0 {
		seconds := max(int(state.RetryAfter.Seconds()), 1)
		record.RetryAfter = &seconds
	}
	return record
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	state := ratelimit.State{
		Key: core.RateLimitKey{
			ProviderID: r.ProviderID,
			ScopeType:  r.ScopeType,
			ScopeID:    r.ScopeID,
			BucketKey:  r.BucketKey,
		},
		Limit:      r.Limit,
		Remaining:  r.Remaining,
		LastStatus: r.LastStatus,
		Attempts:   r.Attempts,
		UpdatedAt:  r.UpdatedAt.UTC(),
		Metadata:   maps.Clone(r.Metadata),
	}
	if r.ResetAt != nil {
		resetAt := r.ResetAt.UTC()
		state.ResetAt = &resetAt
	}
	if r.ThrottledUntil != nil {
		until := r.ThrottledUntil.UTC()
		state.ThrottledUntil = &until
	}
	if r.RetryAfter != nil && *r.RetryAfter > 0 {
		retry := time.Duration(*r.RetryAfter) * time.Second
		state.RetryAfter = &retry
	}
	return state
}

func validateRateLimitKey(key core.RateLimitKey) error {
	switch {
	case key.ProviderID == "":
		return fmt.Errorf("sqlstore: rate-limit provider id is required")
	case key.ScopeType == "":
		return fmt.Errorf("sqlstore: rate-limit scope type is required")
	case key.ScopeID == "":
		return fmt.Errorf("sqlstore: rate-limit app id is required")
	case key.BucketKey == "":
		return fmt.Errorf("sqlstore: rate-limit bucket key is required")
	}
	return nil
}

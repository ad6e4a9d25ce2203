package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type syncMarkRecord struct {
	bun.BaseModel `bun:"table:feishu_sync_marks,alias:fsm"`

	ID           string    `bun:"id,pk"`
	TaskKey      string    `bun:"task_key,notnull"`
	LastSyncedAt time.Time `bun:"last_synced_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type tenantCredentialRecord struct {
	bun.BaseModel `bun:"table:feishu_tenant_credentials,alias:ftc"`

	ID        string    `bun:"id,pk"`
	AppID     string    `bun:"app_id,notnull"`
	Token     string    `bun:"token,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:feishu_rate_limit_state,alias:frl"`

	ID             string         `bun:"id,pk"`
	ProviderID     string         `bun:"provider_id,notnull"`
	ScopeType      string         `bun:"scope_type,notnull"`
	ScopeID        string         `bun:"scope_id,notnull"`
	BucketKey      string         `bun:"bucket_key,notnull"`
	Limit          int            `bun:"request_limit,notnull"`
	Remaining      int            `bun:"remaining,notnull"`
	ResetAt        *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter     *int           `bun:"retry_after_seconds"`
	ThrottledUntil *time.Time     `bun:"throttled_until,nullzero"`
	LastStatus     int            `bun:"last_status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncRunRecord struct {
	bun.BaseModel `bun:"table:feishu_sync_runs,alias:fsr"`

	ID         string         `bun:"id,pk"`
	ProviderID string         `bun:"provider_id,notnull"`
	StartedAt  time.Time      `bun:"started_at,notnull"`
	FinishedAt time.Time      `bun:"finished_at,notnull"`
	Total      int            `bun:"total,notnull"`
	Succeeded  int            `bun:"succeeded,notnull"`
	Failed     int            `bun:"failed,notnull"`
	Skipped    int            `bun:"skipped,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

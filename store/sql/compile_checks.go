package sqlstore

import (
	"github.com/goliatone/go-feishu/auth"
	"github.com/goliatone/go-feishu/ratelimit"
	feishusync "github.com/goliatone/go-feishu/sync"
)

var (
	_ feishusync.BookkeepingStore = (*SyncMarkStore)(nil)
	_ feishusync.RunStore         = (*SyncRunStore)(nil)
	_ auth.CredentialCache        = (*TenantCredentialStore)(nil)
	_ auth.CredentialCache        = (*CachedCredentialStore)(nil)
	_ ratelimit.StateStore        = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore        = (*CachedRateLimitStateStore)(nil)
)

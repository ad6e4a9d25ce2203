package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-feishu/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

const DefaultCacheTTL = time.Minute

// Stores is every SQL store over one bun database.
type Stores struct {
	DB          *bun.DB
	SyncMarks   *SyncMarkStore
	Credentials *TenantCredentialStore
	RateLimits  *RateLimitStateStore
	Runs        *SyncRunStore
}

// StoresOption adjusts stores after they are built.
type StoresOption func(*Stores)

// WithSealedTokens seals tenant tokens with secrets before they are written.
func WithSealedTokens(secrets core.SecretProvider) StoresOption {
	return func(s *Stores) {
		if secrets != nil {
			s.Credentials.SealWith(secrets)
		}
	}
}

// NewStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as a
// go-persistence-bun client.
func NewStores(client any, opts ...StoresOption) (*Stores, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	stores := &Stores{DB: db}
	if stores.SyncMarks, err = NewSyncMarkStore(db); err != nil {
		return nil, err
	}
	if stores.Credentials, err = NewTenantCredentialStore(db); err != nil {
		return nil, err
	}
	if stores.RateLimits, err = NewRateLimitStateStore(db); err != nil {
		return nil, err
	}
	if stores.Runs, err = NewSyncRunStore(db); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt != nil {
			opt(stores)
		}
	}
	return stores, nil
}

// CachedStores are the hot-path stores behind a read-through cache.
type CachedStores struct {
	Credentials *CachedCredentialStore
	RateLimits  *CachedRateLimitStateStore
}

// Cached fronts the credential and rate-limit tables with cacheService. Both
// share it; their key prefixes do not overlap.
func (s *Stores) Cached(cacheService repositorycache.CacheService) (CachedStores, error) {
	if s == nil {
		return CachedStores{}, fmt.Errorf("sqlstore: stores are not built")
	}
	credentials, err := NewCachedCredentialStore(s.Credentials, cacheService)
	if err != nil {
		return CachedStores{}, err
	}
	rateLimits, err := NewCachedRateLimitStateStore(s.RateLimits, cacheService)
	if err != nil {
		return CachedStores{}, err
	}
	return CachedStores{Credentials: credentials, RateLimits: rateLimits}, nil
}

// NewCacheService builds a go-repository-cache service with ttl, or
// DefaultCacheTTL when ttl is not positive.
func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: cache service: %w", err)
	}
	return service, nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is nil")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

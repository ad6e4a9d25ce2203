package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-feishu/auth"
	"github.com/goliatone/go-feishu/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-feishu::tenant_credential::v1"

var errCredentialMiss = errors.New("sqlstore: credential not cached")

// CachedCredentialStore reads tenant tokens through a cache service. Every
// write evicts the app's entry, and Clear evicts everything it filled.
type CachedCredentialStore struct {
	base   auth.CredentialCache
	reader *readThrough[core.Credential]
}

func NewCachedCredentialStore(
	base auth.CredentialCache,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential cache is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{
		base:   base,
		reader: newReadThrough[core.Credential](cacheService, nil),
	}, nil
}

// CredentialCacheKey returns go-feishu::tenant_credential::v1::<app id> with
// the app id URL-path escaped.
func CredentialCacheKey(appID string) (string, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return "", fmt.Errorf("sqlstore: credential app id is required")
	}
	return cacheKey(credentialCacheKeyPrefix, appID), nil
}

func (s *CachedCredentialStore) Get(ctx context.Context, appID string) (core.Credential, bool, error) {
	if err := s.ready(); err != nil {
		return core.Credential{}, false, err
	}
	key, err := CredentialCacheKey(appID)
	if err != nil {
		return core.Credential{}, false, err
	}
	cred, err := s.reader.get(ctx, key, func(ctx context.Context) (core.Credential, error) {
		fetched, ok, err := s.base.Get(ctx, appID)
		if err == nil && !ok {
			err = errCredentialMiss
		}
		return fetched, err
	})
	switch {
	case errors.Is(err, errCredentialMiss):
		return core.Credential{}, false, nil
	case err != nil:
		return core.Credential{}, false, err
	}
	return cred, true, nil
}

func (s *CachedCredentialStore) Put(ctx context.Context, cred core.Credential) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.base.Put(ctx, cred); err != nil {
		return err
	}
	return s.evict(ctx, cred.SubjectKey)
}

func (s *CachedCredentialStore) Delete(ctx context.Context, appID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.base.Delete(ctx, appID); err != nil {
		return err
	}
	return s.evict(ctx, appID)
}

func (s *CachedCredentialStore) Clear(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.base.Clear(ctx); err != nil {
		return err
	}
	return s.reader.evictAll(ctx)
}

func (s *CachedCredentialStore) evict(ctx context.Context, appID string) error {
	key, err := CredentialCacheKey(appID)
	if err != nil {
		return err
	}
	return s.reader.evict(ctx, key)
}

func (s *CachedCredentialStore) ready() error {
	if s == nil || s.base == nil || s.reader == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	return nil
}

package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-feishu/core"
)

// CredentialCache stores tenant tokens keyed by app id.
type CredentialCache interface {
	Get(ctx context.Context, appID string) (core.Credential, bool, error)
	Put(ctx context.Context, cred core.Credential) error
	Delete(ctx context.Context, appID string) error
	Clear(ctx context.Context) error
}

type MemoryCredentialCache struct {
	mu    sync.RWMutex
	items map[string]core.Credential
}

func NewMemoryCredentialCache() *MemoryCredentialCache {
	return &MemoryCredentialCache{items: map[string]core.Credential{}}
}

func (c *MemoryCredentialCache) Get(_ context.Context, appID string) (core.Credential, bool, error) {
	if c == nil {
		return core.Credential{}, false, fmt.Errorf("auth: credential cache is nil")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cred, ok := c.items[strings.TrimSpace(appID)]
	return cred, ok, nil
}

func (c *MemoryCredentialCache) Put(_ context.Context, cred core.Credential) error {
	if c == nil {
		return fmt.Errorf("auth: credential cache is nil")
	}
	key := strings.TrimSpace(cred.SubjectKey)
	if key == "" {
		return fmt.Errorf("auth: credential subject key is required")
	}
	cred.SubjectKey = key
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cred
	return nil
}

func (c *MemoryCredentialCache) Delete(_ context.Context, appID string) error {
	if c == nil {
		return fmt.Errorf("auth: credential cache is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, strings.TrimSpace(appID))
	return nil
}

func (c *MemoryCredentialCache) Clear(context.Context) error {
	if c == nil {
		return fmt.Errorf("auth: credential cache is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]core.Credential{}
	return nil
}

var _ CredentialCache = (*MemoryCredentialCache)(nil)

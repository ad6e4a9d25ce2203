package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-feishu/auth"
	"github.com/goliatone/go-feishu/core"
)

type countingCredentialCache struct {
	*auth.MemoryCredentialCache
	gets int
}

func (c *countingCredentialCache) Get(ctx context.Context, appID string) (core.Credential, bool, error) {
	c.gets++
	return c.MemoryCredentialCache.Get(ctx, appID)
}

func TestCachedCredentialStore_HitsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	base := &countingCredentialCache{MemoryCredentialCache: auth.NewMemoryCredentialCache()}
	store, err := NewCachedCredentialStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached credential store: %v", err)
	}

	if _, ok, err := store.Get(ctx, "cli_1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	expires := time.Now().Add(time.Hour)
	if err := store.Put(ctx, core.Credential{SubjectKey: "cli_1", Token: "t-1", ExpiresAt: expires}); err != nil {
		t.Fatalf("put: %v", err)
	}
	before := base.gets
	for i := 0; i < 2; i++ {
		cred, ok, err := store.Get(ctx, "cli_1")
		if err != nil || !ok || cred.Token != "t-1" {
			t.Fatalf("get %d: %#v ok=%v err=%v", i, cred, ok, err)
		}
	}
	if base.gets != before+1 {
		t.Fatalf("expected one base read for two gets, got %d", base.gets-before)
	}

	if err := store.Put(ctx, core.Credential{SubjectKey: "cli_1", Token: "t-2", ExpiresAt: expires}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	cred, _, _ := store.Get(ctx, "cli_1")
	if cred.Token != "t-2" {
		t.Fatalf("expected write to invalidate cached token, got %q", cred.Token)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "cli_1"); ok {
		t.Fatalf("expected clear to drop cached token")
	}
}

func TestCredentialCacheKey(t *testing.T) {
	key, err := CredentialCacheKey(" cli/a b ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-feishu::tenant_credential::v1::cli%2Fa%20b" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := CredentialCacheKey(" "); err == nil {
		t.Fatalf("expected empty app id error")
	}
}

package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	service, err := NewCacheService(time.Minute)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCacheKeyEscapesSegments(t *testing.T) {
	got := cacheKey("p::v1", "a/b", "c d", "")
	if want := "p::v1::a%2Fb::c%20d::"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestReadThrough_FetchesOnceAndClones(t *testing.T) {
	ctx := context.Background()
	reader := newReadThrough(newTestCacheService(t), func(v []string) []string { return append([]string(nil), v...) })
	fetches := 0
	fetch := func(context.Context) ([]string, error) {
		fetches++
		return []string{"a"}, nil
	}

	first, err := reader.get(ctx, "k", fetch)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	first[0] = "mutated"
	second, err := reader.get(ctx, "k", fetch)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if fetches != 1 || second[0] != "a" {
		t.Fatalf("expected one isolated fetch, got fetches=%d value=%v", fetches, second)
	}

	if err := reader.evictAll(ctx); err != nil {
		t.Fatalf("evict all: %v", err)
	}
	if _, err := reader.get(ctx, "k", fetch); err != nil || fetches != 2 {
		t.Fatalf("expected refetch after evictAll, fetches=%d err=%v", fetches, err)
	}
}

func TestReadThrough_DoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	reader := newReadThrough[int](newTestCacheService(t), nil)
	boom := errors.New("boom")
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	}

	if _, err := reader.get(ctx, "k", fetch); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if value, err := reader.get(ctx, "k", fetch); err != nil || value != 7 {
		t.Fatalf("expected retry to fetch, got %d %v", value, err)
	}
}

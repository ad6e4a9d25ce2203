package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/ratelimit"
	sqlstore "github.com/goliatone/go-feishu/store/sql"
	feishusync "github.com/goliatone/go-feishu/sync"
	persistence "github.com/goliatone/go-persistence-bun"
)

func newSQLiteStores(t *testing.T, opts ...sqlstore.StoresOption) *sqlstore.Stores {
	t.Helper()
	dsn := fmt.Sprintf("file:feishu-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	client, err := sqlstore.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := sqlstore.Migrate(context.Background(), client, sqlstore.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	stores, err := sqlstore.NewStores(client, opts...)
	if err != nil {
		t.Fatalf("new stores: %v", err)
	}
	return stores
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if _, err := sqlstore.Open("mysql", "dsn"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.Open("sqlite3", " "); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestMigrate_RequiresClient(t *testing.T) {
	var client *persistence.Client
	if err := sqlstore.Migrate(context.Background(), client, "sqlite3"); err == nil {
		t.Fatalf("expected missing client error")
	}
}

func TestNewStores_RejectsUnsupportedClients(t *testing.T) {
	for _, client := range []any{nil, "dsn", 42} {
		if _, err := sqlstore.NewStores(client); err == nil {
			t.Fatalf("expected %T to be rejected", client)
		}
	}
}

func TestSyncMarkStore_PutGetListClear(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStores(t).SyncMarks

	if _, ok, err := store.Get(ctx, "feishu:g-1"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.Put(ctx, feishusync.SyncMark{TaskKey: "feishu:g-1", LastSyncedAt: first}); err != nil {
		t.Fatalf("put: %v", err)
	}
	second := first.Add(time.Hour)
	if err := store.Put(ctx, feishusync.SyncMark{TaskKey: "feishu:g-1", LastSyncedAt: second}); err != nil {
		t.Fatalf("put again: %v", err)
	}
	if err := store.Put(ctx, feishusync.SyncMark{TaskKey: "feishu:g-2", LastSyncedAt: first}); err != nil {
		t.Fatalf("put second key: %v", err)
	}

	mark, ok, err := store.Get(ctx, "feishu:g-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !mark.LastSyncedAt.Equal(second) {
		t.Fatalf("expected upsert to move the mark to %s, got %s", second, mark.LastSyncedAt)
	}

	marks, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(marks) != 2 || marks[0].TaskKey != "feishu:g-1" || marks[1].TaskKey != "feishu:g-2" {
		t.Fatalf("unexpected marks %#v", marks)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	marks, err = store.List(ctx)
	if err != nil || len(marks) != 0 {
		t.Fatalf("expected cleared store, got %#v %v", marks, err)
	}
	if err := store.Put(ctx, feishusync.SyncMark{}); err == nil {
		t.Fatalf("expected missing task key error")
	}
}

func TestSyncMarkStore_BacksReconcilerCooldown(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStores(t).SyncMarks

	reconciler, err := feishusync.NewReconciler(feishusync.ReconcilerConfig{
		API:         noopTaskAPI{},
		Bookkeeping: store,
	})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	cfg := core.DefaultConfig().Provider
	cfg.TwoWaySync = true
	task := core.LocalTask{ProviderLinkID: "p-1", RemoteID: "g-1", Title: "Task g-1"}

	first, err := reconciler.Reconcile(ctx, task, cfg, feishusync.ReconcileOptions{})
	if err != nil || first.Outcome != feishusync.OutcomeSynced {
		t.Fatalf("expected first reconcile to sync, got %+v %v", first, err)
	}
	second, err := reconciler.Reconcile(ctx, task, cfg, feishusync.ReconcileOptions{})
	if err != nil || second.Outcome != feishusync.OutcomeSkippedCooldown {
		t.Fatalf("expected persisted mark to hold the cooldown, got %+v %v", second, err)
	}
}

func TestTenantCredentialStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStores(t).Credentials
	expires := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if _, ok, err := store.Get(ctx, "cli_1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, core.Credential{SubjectKey: "cli_1", Token: "t-1", ExpiresAt: expires}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, core.Credential{SubjectKey: "cli_1", Token: "t-2", ExpiresAt: expires.Add(time.Hour)}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	cred, ok, err := store.Get(ctx, "cli_1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if cred.Token != "t-2" || !cred.ExpiresAt.Equal(expires.Add(time.Hour)) {
		t.Fatalf("expected replaced credential, got %#v", cred)
	}

	if err := store.Delete(ctx, "cli_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "cli_1"); ok {
		t.Fatalf("expected deleted credential")
	}
	if err := store.Put(ctx, core.Credential{Token: "t"}); err == nil {
		t.Fatalf("expected missing app id error")
	}
}

func TestRateLimitStateStore_UpsertKeepsCounters(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStores(t).RateLimits
	key := ratelimit.AppKey("cli_1", ratelimit.BucketTaskAPI)

	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	until := time.Date(2026, 3, 1, 0, 0, 30, 0, time.UTC)
	retry := 30 * time.Second
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            key,
		Limit:          100,
		Remaining:      0,
		RetryAfter:     &retry,
		ThrottledUntil: &until,
		LastStatus:     429,
		Attempts:       2,
		UpdatedAt:      until.Add(-retry),
		Metadata:       map[string]any{ratelimit.MetadataAPICode: 99991400},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            key,
		Limit:          100,
		Remaining:      5,
		ThrottledUntil: &until,
		LastStatus:     429,
		Attempts:       3,
		UpdatedAt:      until,
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Remaining != 5 || state.Attempts != 3 || state.LastStatus != 429 {
		t.Fatalf("unexpected counters %#v", state)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(until) {
		t.Fatalf("expected throttle window to round trip, got %v", state.ThrottledUntil)
	}
	if state.RetryAfter != nil {
		t.Fatalf("expected retry hint to be replaced, got %v", *state.RetryAfter)
	}
	if _, ok := state.Metadata["_attempts"]; ok {
		t.Fatalf("expected internal metadata keys to be stripped, got %#v", state.Metadata)
	}

	if err := store.Upsert(ctx, ratelimit.State{Key: ratelimit.AppKey("", ratelimit.BucketTaskAPI)}); err == nil {
		t.Fatalf("expected missing app id error")
	}
}

func TestSyncRunStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStores(t).Runs
	started := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := store.Record(ctx, feishusync.RunSummary{
			ID:         fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i+1),
			ProviderID: "feishu",
			StartedAt:  started.Add(time.Duration(i) * time.Minute),
			FinishedAt: started.Add(time.Duration(i)*time.Minute + time.Second),
			Total:      3,
			Succeeded:  2,
			Failed:     1,
			Metadata:   map[string]any{"app_secret": "s", "trigger": "poll"},
		}); err != nil {
			t.Fatalf("record run %d: %v", i, err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected two runs, got %d", len(runs))
	}
	if runs[0].ID != "00000000-0000-0000-0000-000000000003" {
		t.Fatalf("expected newest run first, got %q", runs[0].ID)
	}
	if runs[0].Duration() != time.Second || runs[0].Failed != 1 {
		t.Fatalf("unexpected run %#v", runs[0])
	}
	if runs[0].Metadata["app_secret"] != "[REDACTED]" || runs[0].Metadata["trigger"] != "poll" {
		t.Fatalf("expected redacted metadata, got %#v", runs[0].Metadata)
	}
}

type noopTaskAPI struct{}

func (noopTaskAPI) GetTask(_ context.Context, guid string, _ core.ProviderConfig) (core.Issue, error) {
	return core.Issue{ID: guid, GUID: guid, Summary: "Task " + guid, CompletedAt: "0"}, nil
}

func (noopTaskAPI) UpdateTask(_ context.Context, guid string, _ core.TaskPatch, _ core.ProviderConfig) (core.Issue, error) {
	return core.Issue{ID: guid, GUID: guid}, nil
}

func (noopTaskAPI) CompleteTask(_ context.Context, guid string, _ core.ProviderConfig) (core.Issue, error) {
	return core.Issue{ID: guid, GUID: guid}, nil
}

func (noopTaskAPI) UncompleteTask(_ context.Context, guid string, _ core.ProviderConfig) (core.Issue, error) {
	return core.Issue{ID: guid, GUID: guid}, nil
}

func (noopTaskAPI) CreateComment(_ context.Context, _ string, content string, _ core.ProviderConfig) (core.Comment, error) {
	return core.Comment{ID: "c-" + content}, nil
}

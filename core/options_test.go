package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingRawLoader struct{}

func (failingRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return nil, errors.New("read failed")
}

func TestCfgxConfigProvider_AppliesDefaultsAndOverrides(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"service_name": "tasks",
		"pagination":   map[string]any{"page_size": 20},
		"provider": map[string]any{
			"enabled":             true,
			"app_id":              "cli_1",
			"app_secret":          "secret",
			"filter_tasklist_ids": []string{"tl_1", "tl_2"},
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "tasks" {
		t.Fatalf("expected service_name override, got %q", cfg.ServiceName)
	}
	if cfg.Pagination.PageSize != 20 || cfg.Pagination.MaxPages != DefaultMaxPages {
		t.Fatalf("unexpected pagination %+v", cfg.Pagination)
	}
	if !cfg.Provider.IsEnabled() || len(cfg.Provider.FilterTasklistIDs) != 2 {
		t.Fatalf("unexpected provider config %+v", cfg.Provider)
	}
	if !cfg.Provider.SearchIssuesFromAPI {
		t.Fatalf("expected search_issues_from_api default to survive")
	}
	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.API.BaseURL)
	}
}

func TestCfgxConfigProvider_RejectsInvalidConfig(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"pagination": map[string]any{"max_page_size": 500},
	}})
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected validation failure")
	}
	if _, err := NewCfgxConfigProvider(failingRawLoader{}).Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected loader failure to surface")
	}
}

func TestGoOptionsResolver_RuntimeWinsOverLoaded(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "from-config",
		Sync:        SyncConfig{Cooldown: 10 * time.Minute},
		Provider:    ProviderConfig{AppID: "cli_config", TwoWaySync: true},
	}
	runtime := Config{
		ServiceName: "from-runtime",
		Provider:    ProviderConfig{AppID: "cli_runtime"},
	}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name, got %q", resolved.ServiceName)
	}
	if resolved.Provider.AppID != "cli_runtime" {
		t.Fatalf("expected runtime app id, got %q", resolved.Provider.AppID)
	}
	if !resolved.Provider.TwoWaySync {
		t.Fatalf("expected loaded two_way_sync to survive")
	}
	if resolved.Sync.Cooldown != 10*time.Minute {
		t.Fatalf("expected loaded cooldown, got %s", resolved.Sync.Cooldown)
	}
	if resolved.Sync.Concurrency != DefaultSyncConcurrency {
		t.Fatalf("expected default concurrency, got %d", resolved.Sync.Concurrency)
	}
	if !resolved.Provider.SyncTaskStatus {
		t.Fatalf("expected default sync_task_status to survive")
	}
}

func TestConfigToLayerMap_SkipsZeroValues(t *testing.T) {
	layer := configToLayerMap(Config{ServiceName: "x"}, false)
	if len(layer) != 1 {
		t.Fatalf("expected only service_name in sparse layer, got %+v", layer)
	}
	full := configToLayerMap(DefaultConfig(), true)
	for _, key := range []string{"api", "token", "pagination", "sync", "provider"} {
		if _, ok := full[key]; !ok {
			t.Fatalf("expected %s section in full layer", key)
		}
	}
}

package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return MapError(err)
}

// StaticRawConfigLoader serves a fixed raw map, typically produced by viper.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap renders cfg as an options layer. Unless includeZero is
// set, zero values are left out so they do not shadow lower layers.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	api := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.API.BaseURL) != "" {
		api["base_url"] = cfg.API.BaseURL
	}
	if includeZero || cfg.API.RequestTimeout > 0 {
		api["request_timeout"] = cfg.API.RequestTimeout
	}
	if includeZero || cfg.API.MaxResponseBodyBytes > 0 {
		api["max_response_body_bytes"] = cfg.API.MaxResponseBodyBytes
	}
	putSection(layer, "api", api)

	token := map[string]any{}
	if includeZero || cfg.Token.RefreshBuffer > 0 {
		token["refresh_buffer"] = cfg.Token.RefreshBuffer
	}
	if includeZero || cfg.Token.DefaultExpireSeconds > 0 {
		token["default_expire_seconds"] = cfg.Token.DefaultExpireSeconds
	}
	putSection(layer, "token", token)

	pagination := map[string]any{}
	if includeZero || cfg.Pagination.PageSize > 0 {
		pagination["page_size"] = cfg.Pagination.PageSize
	}
	if includeZero || cfg.Pagination.MaxPageSize > 0 {
		pagination["max_page_size"] = cfg.Pagination.MaxPageSize
	}
	if includeZero || cfg.Pagination.MaxPages > 0 {
		pagination["max_pages"] = cfg.Pagination.MaxPages
	}
	putSection(layer, "pagination", pagination)

	syncSection := map[string]any{}
	if includeZero || cfg.Sync.Cooldown > 0 {
		syncSection["cooldown"] = cfg.Sync.Cooldown
	}
	if includeZero || cfg.Sync.Concurrency > 0 {
		syncSection["concurrency"] = cfg.Sync.Concurrency
	}
	if includeZero || cfg.Sync.PollInterval > 0 {
		syncSection["poll_interval"] = cfg.Sync.PollInterval
	}
	putSection(layer, "sync", syncSection)

	putSection(layer, "provider", providerToLayerMap(cfg.Provider, includeZero))
	return layer
}

func providerToLayerMap(cfg ProviderConfig, includeZero bool) map[string]any {
	section := map[string]any{}
	putString := func(key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			section[key] = value
		}
	}
	putBool := func(key string, value bool) {
		if includeZero || value {
			section[key] = value
		}
	}
	putBool("enabled", cfg.Enabled)
	putString("app_id", cfg.AppID)
	putString("app_secret", cfg.AppSecret)
	putBool("search_issues_from_api", cfg.SearchIssuesFromAPI)
	putBool("auto_poll", cfg.AutoPoll)
	putBool("auto_add_to_backlog", cfg.AutoAddToBacklog)
	putString("filter_user_id", cfg.FilterUserID)
	if includeZero || len(cfg.FilterTasklistIDs) > 0 {
		section["filter_tasklist_ids"] = append([]string(nil), cfg.FilterTasklistIDs...)
	}
	putBool("two_way_sync", cfg.TwoWaySync)
	putBool("sync_task_status", cfg.SyncTaskStatus)
	putBool("sync_task_content", cfg.SyncTaskContent)
	putBool("sync_comments", cfg.SyncComments)
	return section
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) == 0 {
		return
	}
	layer[key] = section
}

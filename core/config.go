package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL               = "https://open.feishu.cn/open-apis"
	DefaultRequestTimeout           = 30 * time.Second
	DefaultMaxResponseBodyBytes     = int64(10 << 20)
	DefaultTokenRefreshBuffer       = 5 * time.Minute
	DefaultTokenExpireSeconds       = 7200
	DefaultPageSize                 = 50
	MaxPageSize                     = 100
	DefaultMaxPages                 = 10
	DefaultSyncCooldown             = 5 * time.Minute
	DefaultSyncConcurrency          = 8
	DefaultPollInterval             = 5 * time.Minute
	DefaultBacklogPageSize          = 100
	DefaultConnectionTestPageSize   = 1
	DefaultServiceName              = "feishu"
	defaultMaxConfiguredConcurrency = 64
)

type APIConfig struct {
	BaseURL              string        `koanf:"base_url" mapstructure:"base_url"`
	RequestTimeout       time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type TokenConfig struct {
	RefreshBuffer        time.Duration `koanf:"refresh_buffer" mapstructure:"refresh_buffer"`
	DefaultExpireSeconds int           `koanf:"default_expire_seconds" mapstructure:"default_expire_seconds"`
}

type PaginationConfig struct {
	PageSize    int `koanf:"page_size" mapstructure:"page_size"`
	MaxPageSize int `koanf:"max_page_size" mapstructure:"max_page_size"`
	MaxPages    int `koanf:"max_pages" mapstructure:"max_pages"`
}

type SyncConfig struct {
	Cooldown     time.Duration `koanf:"cooldown" mapstructure:"cooldown"`
	Concurrency  int           `koanf:"concurrency" mapstructure:"concurrency"`
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
}

// ProviderConfig is the per issue provider configuration surface. It is
// consumed by the client and the reconciler but owned by the host.
type ProviderConfig struct {
	Enabled             bool     `koanf:"enabled" mapstructure:"enabled"`
	AppID               string   `koanf:"app_id" mapstructure:"app_id"`
	AppSecret           string   `koanf:"app_secret" mapstructure:"app_secret"`
	SearchIssuesFromAPI bool     `koanf:"search_issues_from_api" mapstructure:"search_issues_from_api"`
	AutoPoll            bool     `koanf:"auto_poll" mapstructure:"auto_poll"`
	AutoAddToBacklog    bool     `koanf:"auto_add_to_backlog" mapstructure:"auto_add_to_backlog"`
	FilterUserID        string   `koanf:"filter_user_id" mapstructure:"filter_user_id"`
	FilterTasklistIDs   []string `koanf:"filter_tasklist_ids" mapstructure:"filter_tasklist_ids"`
	TwoWaySync          bool     `koanf:"two_way_sync" mapstructure:"two_way_sync"`
	SyncTaskStatus      bool     `koanf:"sync_task_status" mapstructure:"sync_task_status"`
	SyncTaskContent     bool     `koanf:"sync_task_content" mapstructure:"sync_task_content"`
	SyncComments        bool     `koanf:"sync_comments" mapstructure:"sync_comments"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	API         APIConfig        `koanf:"api" mapstructure:"api"`
	Token       TokenConfig      `koanf:"token" mapstructure:"token"`
	Pagination  PaginationConfig `koanf:"pagination" mapstructure:"pagination"`
	Sync        SyncConfig       `koanf:"sync" mapstructure:"sync"`
	Provider    ProviderConfig   `koanf:"provider" mapstructure:"provider"`
}

func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		SearchIssuesFromAPI: true,
		SyncTaskStatus:      true,
		SyncTaskContent:     true,
	}
}

func DefaultConfig() Config {
	return Config{
		ServiceName: DefaultServiceName,
		API: APIConfig{
			BaseURL:              DefaultAPIBaseURL,
			RequestTimeout:       DefaultRequestTimeout,
			MaxResponseBodyBytes: DefaultMaxResponseBodyBytes,
		},
		Token: TokenConfig{
			RefreshBuffer:        DefaultTokenRefreshBuffer,
			DefaultExpireSeconds: DefaultTokenExpireSeconds,
		},
		Pagination: PaginationConfig{
			PageSize:    DefaultPageSize,
			MaxPageSize: MaxPageSize,
			MaxPages:    DefaultMaxPages,
		},
		Sync: SyncConfig{
			Cooldown:     DefaultSyncCooldown,
			Concurrency:  DefaultSyncConcurrency,
			PollInterval: DefaultPollInterval,
		},
		Provider: DefaultProviderConfig(),
	}
}

// Validate checks structural bounds only. Missing app credentials are reported
// when a credential is first needed, not at load time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("core: api.base_url is required")
	}
	if c.API.RequestTimeout < 0 {
		return fmt.Errorf("core: api.request_timeout must not be negative")
	}
	if c.Token.RefreshBuffer < 0 {
		return fmt.Errorf("core: token.refresh_buffer must not be negative")
	}
	if c.Token.DefaultExpireSeconds < 0 {
		return fmt.Errorf("core: token.default_expire_seconds must not be negative")
	}
	if c.Pagination.MaxPageSize > MaxPageSize {
		return fmt.Errorf("core: pagination.max_page_size must be <= %d", MaxPageSize)
	}
	if c.Pagination.PageSize < 0 || c.Pagination.MaxPages < 0 {
		return fmt.Errorf("core: pagination values must not be negative")
	}
	if c.Sync.Cooldown < 0 {
		return fmt.Errorf("core: sync.cooldown must not be negative")
	}
	if c.Sync.Concurrency < 0 || c.Sync.Concurrency > defaultMaxConfiguredConcurrency {
		return fmt.Errorf("core: sync.concurrency must be between 0 and %d", defaultMaxConfiguredConcurrency)
	}
	return nil
}

// IsEnabled reports whether the provider is switched on and has credentials.
func (c ProviderConfig) IsEnabled() bool {
	return c.Enabled && strings.TrimSpace(c.AppID) != "" && strings.TrimSpace(c.AppSecret) != ""
}

func (c ProviderConfig) Credentials() AppCredentials {
	return AppCredentials{
		AppID:     strings.TrimSpace(c.AppID),
		AppSecret: strings.TrimSpace(c.AppSecret),
	}
}

// EffectivePageSize clamps a requested size to the API maximum.
func (c PaginationConfig) EffectivePageSize(requested int) int {
	maximum := c.MaxPageSize
	if maximum <= 0 || maximum > MaxPageSize {
		maximum = MaxPageSize
	}
	if requested <= 0 {
		requested = c.PageSize
	}
	if requested <= 0 {
		requested = DefaultPageSize
	}
	if requested > maximum {
		return maximum
	}
	return requested
}

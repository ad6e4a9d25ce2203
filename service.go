package feishu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-feishu/adapters/gologger"
	"github.com/goliatone/go-feishu/auth"
	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/paging"
	feishuprovider "github.com/goliatone/go-feishu/providers/feishu"
	"github.com/goliatone/go-feishu/ratelimit"
	feishusync "github.com/goliatone/go-feishu/sync"
	"github.com/goliatone/go-feishu/transport"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the composition root: one configured app, its token manager,
// task client, reconciler and provider.
type Service struct {
	config         Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	configProvider core.ConfigProvider
	resolver       core.OptionsResolver
	now            func() time.Time

	tokens     *auth.TenantTokenManager
	client     *feishuprovider.Client
	reconciler *feishusync.Reconciler
	provider   *feishuprovider.Provider
	registry   *core.ProviderRegistry
	runs       feishusync.RunStore
}

// New resolves the config from defaults, the config provider and cfg (in
// that order of precedence) and wires every component. Missing stores fall
// back to in-memory ones.
func New(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := gologger.Resolve(core.DefaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	component := func(name string) core.Logger {
		return gologger.Component(provider, logger, name)
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.credentialCache == nil {
		builder.credentialCache = auth.NewMemoryCredentialCache()
	}
	if builder.bookkeeping == nil {
		builder.bookkeeping = feishusync.NewMemoryBookkeepingStore()
	}
	if builder.runStore == nil {
		builder.runStore = feishusync.NewMemoryRunStore()
	}
	if builder.rateLimitStore == nil {
		builder.rateLimitStore = ratelimit.NewMemoryStateStore()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(err)
	}

	if builder.transport == nil {
		builder.transport = transport.NewRESTAdapterFromConfig(finalConfig.API, nil)
	}
	classifier := core.NewClassifier(builder.notifier, component("errors"))
	policy := ratelimit.NewAdaptivePolicy(builder.rateLimitStore)
	policy.Now = builder.now

	tokens, err := auth.NewTenantTokenManager(auth.TenantTokenManagerConfig{
		Transport:            builder.transport,
		Cache:                builder.credentialCache,
		Classifier:           classifier,
		RateLimitPolicy:      policy,
		Logger:               component("auth"),
		Metrics:              builder.metricsRecorder,
		RefreshBuffer:        finalConfig.Token.RefreshBuffer,
		DefaultExpireSeconds: finalConfig.Token.DefaultExpireSeconds,
		RequestTimeout:       finalConfig.API.RequestTimeout,
		Now:                  builder.now,
	})
	if err != nil {
		return nil, mapBuildError(err)
	}
	client, err := feishuprovider.NewClient(feishuprovider.ClientConfig{
		Transport:       builder.transport,
		Tokens:          tokens,
		Classifier:      classifier,
		RateLimitPolicy: policy,
		Logger:          component("client"),
		Metrics:         builder.metricsRecorder,
		Pagination:      finalConfig.Pagination,
		RequestTimeout:  finalConfig.API.RequestTimeout,
		Now:             builder.now,
	})
	if err != nil {
		return nil, mapBuildError(err)
	}
	reconciler, err := feishusync.NewReconciler(feishusync.ReconcilerConfig{
		API:         client,
		Bookkeeping: builder.bookkeeping,
		Runs:        builder.runStore,
		Logger:      component("sync"),
		Metrics:     builder.metricsRecorder,
		Cooldown:    finalConfig.Sync.Cooldown,
		Concurrency: finalConfig.Sync.Concurrency,
		ProviderID:  feishuprovider.ProviderID,
		Now:         builder.now,
	})
	if err != nil {
		return nil, mapBuildError(err)
	}
	issueProvider, err := feishuprovider.NewProvider(feishuprovider.ProviderOptions{
		Client:       client,
		Reconciler:   reconciler,
		Logger:       component("provider"),
		PollInterval: finalConfig.Sync.PollInterval,
	})
	if err != nil {
		return nil, mapBuildError(err)
	}
	registry := core.NewProviderRegistry()
	if err := registry.Register(issueProvider); err != nil {
		return nil, mapBuildError(err)
	}

	return &Service{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		metrics:        builder.metricsRecorder,
		configProvider: builder.configProvider,
		resolver:       builder.optionsResolver,
		now:            builder.now,
		tokens:         tokens,
		client:         client,
		reconciler:     reconciler,
		provider:       issueProvider,
		registry:       registry,
		runs:           builder.runStore,
	}, nil
}

func mapBuildError(err error) error {
	if err == nil {
		return nil
	}
	if mapped := core.MapError(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) ProviderConfig() ProviderConfig {
	return s.Config().Provider
}

func (s *Service) Logger() core.Logger {
	if s == nil || s.logger == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Provider() *feishuprovider.Provider {
	if s == nil {
		return nil
	}
	return s.provider
}

func (s *Service) Client() *feishuprovider.Client {
	if s == nil {
		return nil
	}
	return s.client
}

func (s *Service) Reconciler() *feishusync.Reconciler {
	if s == nil {
		return nil
	}
	return s.reconciler
}

// Registry lists the issue providers this service exposes.
func (s *Service) Registry() *core.ProviderRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) ReconcileTask(
	ctx context.Context,
	task core.LocalTask,
	opts feishusync.ReconcileOptions,
) (feishusync.ReconcileResult, error) {
	if err := s.ready(); err != nil {
		return feishusync.ReconcileResult{}, err
	}
	return s.reconciler.Reconcile(ctx, task, s.config.Provider, opts)
}

func (s *Service) ReconcileTasks(ctx context.Context, tasks []core.LocalTask) (feishusync.RunSummary, error) {
	if err := s.ready(); err != nil {
		return feishusync.RunSummary{}, err
	}
	return s.reconciler.ReconcileMany(ctx, tasks, s.config.Provider)
}

func (s *Service) ClearSyncCache(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.reconciler.ClearSyncCache(ctx)
}

// InvalidateCredential drops the cached tenant token for appID, or for the
// configured app when appID is empty.
func (s *Service) InvalidateCredential(ctx context.Context, appID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		appID = strings.TrimSpace(s.config.Provider.AppID)
	}
	if appID == "" {
		return &core.ConfigurationError{Field: "app_id"}
	}
	return s.tokens.Invalidate(ctx, appID)
}

func (s *Service) UpdateFromTask(ctx context.Context, task core.LocalTask) error {
	if err := s.ready(); err != nil {
		return err
	}
	provider, ok := s.registry.ForTask(task)
	if !ok {
		return core.InvalidField("task", "issue_type", "no provider serves issue type "+task.IssueType)
	}
	return provider.UpdateFromTask(ctx, task, s.config.Provider)
}

func (s *Service) GetIssue(ctx context.Context, guid string) (core.Issue, error) {
	if err := s.ready(); err != nil {
		return core.Issue{}, err
	}
	return s.provider.GetByID(ctx, guid, s.config.Provider)
}

func (s *Service) SearchIssues(ctx context.Context, term string) ([]core.SearchResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.provider.Search(ctx, term, s.config.Provider)
}

func (s *Service) FreshData(ctx context.Context, task core.LocalTask) (*core.FreshData, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.provider.GetFreshData(ctx, task, s.config.Provider)
}

func (s *Service) NewItems(ctx context.Context, existingIDs []string) ([]core.IssueReduced, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.provider.GetNewItems(ctx, existingIDs, s.config.Provider)
}

func (s *Service) TestConnection(ctx context.Context) bool {
	if s.ready() != nil {
		return false
	}
	return s.provider.TestConnection(ctx, s.config.Provider)
}

// ListIssues walks every page of tasks visible to the app. A truncated walk
// returns the items read so far with the error.
func (s *Service) ListIssues(ctx context.Context) (paging.Result[core.Issue], error) {
	if err := s.ready(); err != nil {
		return paging.Result[core.Issue]{}, err
	}
	result := s.client.GetAllTasks(ctx, s.config.Provider)
	return result, result.Err
}

func (s *Service) RecentSyncRuns(ctx context.Context, limit int) ([]feishusync.RunSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.runs.Recent(ctx, limit)
}

// NewPoller builds the auto poll loop over the host's task store. The
// provider config is re-read from the service on every tick.
func (s *Service) NewPoller(source feishusync.TaskSource, sink feishusync.TaskSink) (*feishusync.Poller, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return feishusync.NewPoller(feishusync.PollerConfig{
		Provider:   s.provider,
		Reconciler: s.reconciler,
		Source:     source,
		Sink:       sink,
		Config:     s.ProviderConfig,
		Interval:   s.config.Sync.PollInterval,
		Logger:     gologger.Component(s.loggerProvider, s.logger, "poller"),
	})
}

func (s *Service) ready() error {
	if s == nil || s.provider == nil || s.reconciler == nil {
		return fmt.Errorf("feishu: service is not initialized")
	}
	return nil
}

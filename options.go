package feishu

import (
	"time"

	"github.com/goliatone/go-feishu/auth"
	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/ratelimit"
	feishusync "github.com/goliatone/go-feishu/sync"
)

type Option func(*serviceBuilder)

type serviceBuilder struct {
	runtimeConfig   Config
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	notifier        core.Notifier
	transport       core.TransportAdapter
	credentialCache auth.CredentialCache
	bookkeeping     feishusync.BookkeepingStore
	runStore        feishusync.RunStore
	rateLimitStore  ratelimit.StateStore
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	now             func() time.Time
}

func defaultServiceBuilder(cfg Config) serviceBuilder {
	return serviceBuilder{runtimeConfig: cfg}
}

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

// WithNotifier sets where user facing failure messages go.
func WithNotifier(notifier core.Notifier) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

// WithTransport replaces the default REST adapter, typically with a fake in
// tests.
func WithTransport(transport core.TransportAdapter) Option {
	return func(b *serviceBuilder) {
		b.transport = transport
	}
}

func WithCredentialCache(cache auth.CredentialCache) Option {
	return func(b *serviceBuilder) {
		b.credentialCache = cache
	}
}

func WithBookkeepingStore(store feishusync.BookkeepingStore) Option {
	return func(b *serviceBuilder) {
		b.bookkeeping = store
	}
}

func WithRunStore(store feishusync.RunStore) Option {
	return func(b *serviceBuilder) {
		b.runStore = store
	}
}

func WithRateLimitStore(store ratelimit.StateStore) Option {
	return func(b *serviceBuilder) {
		b.rateLimitStore = store
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithNow(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

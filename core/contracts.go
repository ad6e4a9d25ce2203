package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives the counters and latency histograms emitted by
// Observe. Tags are copied per call.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TransportRequest is one HTTP exchange with the open platform. Timeout and
// MaxResponseBodyBytes override the adapter defaults when positive.
type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportAdapter performs requests. A non-2xx status is returned as a
// response, not an error; errors mean the exchange itself failed.
type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// RateLimitKey names one throttle bucket, e.g. feishu/app/cli_x/task_api.
type RateLimitKey struct {
	ProviderID string
	ScopeType  string
	ScopeID    string
	BucketKey  string
}

// ProviderResponseMeta is what a rate limit policy learns from a response.
// Metadata carries envelope fields such as the API code.
type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

// TokenSource hands out a usable tenant access token for a set of credentials.
type TokenSource interface {
	EnsureToken(ctx context.Context, creds AppCredentials) (string, error)
	Invalidate(ctx context.Context, appID string) error
}

// IssueProvider is the capability contract a host app consumes for one
// issue provider type. Every call receives the provider config explicitly.
type IssueProvider interface {
	ID() string
	PollInterval() time.Duration
	IsEnabled(cfg ProviderConfig) bool
	IssueLink(issueID string) string
	TestConnection(ctx context.Context, cfg ProviderConfig) bool
	GetByID(ctx context.Context, issueID string, cfg ProviderConfig) (Issue, error)
	Search(ctx context.Context, term string, cfg ProviderConfig) ([]SearchResult, error)
	GetFreshData(ctx context.Context, task LocalTask, cfg ProviderConfig) (*FreshData, error)
	GetFreshDataForTasks(ctx context.Context, tasks []LocalTask, cfg ProviderConfig) ([]FreshTaskData, error)
	AddTaskData(issue Issue) TaskData
	GetNewItems(ctx context.Context, existingIDs []string, cfg ProviderConfig) ([]IssueReduced, error)
	UpdateFromTask(ctx context.Context, task LocalTask, cfg ProviderConfig) error
}

// SecretProvider seals secrets such as tenant tokens before they are stored.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

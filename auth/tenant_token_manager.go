package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/ratelimit"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

const (
	TenantTokenPath      = "/auth/v3/tenant_access_token/internal"
	OperationTenantToken = "tenant_access_token"
)

type TenantTokenManagerConfig struct {
	Transport       core.TransportAdapter
	Cache           CredentialCache
	Classifier      *core.Classifier
	RateLimitPolicy core.RateLimitPolicy
	Logger          core.Logger
	Metrics         core.MetricsRecorder

	RefreshBuffer        time.Duration
	DefaultExpireSeconds int
	RequestTimeout       time.Duration
	Now                  func() time.Time
}

// TenantTokenManager obtains and caches tenant access tokens. At most one
// refresh per app id is in flight; concurrent callers share its result.
type TenantTokenManager struct {
	transport  core.TransportAdapter
	cache      CredentialCache
	classifier *core.Classifier
	policy     core.RateLimitPolicy
	observer   core.Observer

	refreshBuffer        time.Duration
	defaultExpireSeconds int
	requestTimeout       time.Duration
	now                  func() time.Time

	group singleflight.Group
}

type tenantTokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tenantTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

func NewTenantTokenManager(cfg TenantTokenManagerConfig) (*TenantTokenManager, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("auth: transport is required")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCredentialCache()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = core.NewClassifier(nil, logger)
	}
	buffer := cfg.RefreshBuffer
	if buffer <= 0 {
		buffer = core.DefaultTokenRefreshBuffer
	}
	expire := cfg.DefaultExpireSeconds
	if expire <= 0 {
		expire = core.DefaultTokenExpireSeconds
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TenantTokenManager{
		transport:            cfg.Transport,
		cache:                cache,
		classifier:           classifier,
		policy:               cfg.RateLimitPolicy,
		observer:             core.Observer{Logger: logger, Metrics: cfg.Metrics, Now: now},
		refreshBuffer:        buffer,
		defaultExpireSeconds: expire,
		requestTimeout:       cfg.RequestTimeout,
		now:                  now,
	}, nil
}

// EnsureToken returns a cached token that outlives the refresh buffer, or
// exchanges the credentials for a new one.
func (m *TenantTokenManager) EnsureToken(ctx context.Context, creds core.AppCredentials) (string, error) {
	if m == nil {
		return "", fmt.Errorf("auth: token manager is nil")
	}
	creds = core.AppCredentials{
		AppID:     strings.TrimSpace(creds.AppID),
		AppSecret: strings.TrimSpace(creds.AppSecret),
	}
	fields := map[string]any{"app_id": creds.AppID, "operation": OperationTenantToken}
	if err := core.ValidateCredentials(creds); err != nil {
		return "", m.classifier.Handle(ctx, err, fields)
	}

	if token, ok := m.cachedToken(ctx, creds.AppID); ok {
		return token, nil
	}

	// The flight outlives any single caller; each caller waits on its own ctx.
	flight := m.group.DoChan(creds.AppID, func() (any, error) {
		flightCtx, cancel := m.flightContext(ctx)
		defer cancel()
		if token, ok := m.cachedToken(flightCtx, creds.AppID); ok {
			return token, nil
		}
		cred, err := m.exchange(flightCtx, creds)
		if err != nil {
			return "", err
		}
		if err := m.cache.Put(flightCtx, cred); err != nil {
			m.observer.Log(flightCtx, "warn", "auth: credential cache put failed", map[string]any{
				"app_id": creds.AppID,
				"error":  err.Error(),
			})
		}
		return cred.Token, nil
	})
	select {
	case <-ctx.Done():
		return "", m.classifier.Handle(ctx, ctx.Err(), fields)
	case result := <-flight:
		if result.Err != nil {
			return "", m.classifier.Handle(ctx, result.Err, fields)
		}
		token, _ := result.Val.(string)
		return token, nil
	}
}

func (m *TenantTokenManager) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if m.requestTimeout > 0 {
		return context.WithTimeout(detached, m.requestTimeout)
	}
	return context.WithCancel(detached)
}

// Invalidate evicts the cached token for appID.
func (m *TenantTokenManager) Invalidate(ctx context.Context, appID string) error {
	if m == nil {
		return nil
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil
	}
	m.observer.Log(ctx, "info", "auth: tenant token invalidated", map[string]any{"app_id": appID})
	return m.cache.Delete(ctx, appID)
}

// Clear drops every cached token.
func (m *TenantTokenManager) Clear(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.cache.Clear(ctx)
}

func (m *TenantTokenManager) cachedToken(ctx context.Context, appID string) (string, bool) {
	cred, ok, err := m.cache.Get(ctx, appID)
	if err != nil {
		m.observer.Log(ctx, "warn", "auth: credential cache get failed", map[string]any{
			"app_id": appID,
			"error":  err.Error(),
		})
		return "", false
	}
	if !ok || !cred.Usable(m.now(), m.refreshBuffer) {
		return "", false
	}
	return cred.Token, true
}

func (m *TenantTokenManager) exchange(ctx context.Context, creds core.AppCredentials) (cred core.Credential, err error) {
	startedAt := m.now()
	fields := map[string]any{"app_id": creds.AppID}
	defer func() {
		m.observer.Observe(ctx, startedAt, OperationTenantToken, err, fields)
	}()

	key := ratelimit.AppKey(creds.AppID, ratelimit.BucketAuth)
	if m.policy != nil {
		if err = m.policy.BeforeCall(ctx, key); err != nil {
			return core.Credential{}, err
		}
	}

	body, err := json.Marshal(tenantTokenRequest{AppID: creds.AppID, AppSecret: creds.AppSecret})
	if err != nil {
		return core.Credential{}, fmt.Errorf("auth: encode token request: %w", err)
	}
	res, err := m.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     TenantTokenPath,
		Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:    body,
		Timeout: m.requestTimeout,
	})
	if err != nil {
		return core.Credential{}, err
	}

	var payload tenantTokenResponse
	decodeErr := json.Unmarshal(res.Body, &payload)

	if m.policy != nil {
		meta := core.ProviderResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}
		if decodeErr == nil && payload.Code != 0 {
			meta.Metadata = map[string]any{ratelimit.MetadataAPICode: payload.Code}
		}
		if policyErr := m.policy.AfterCall(ctx, key, meta); policyErr != nil {
			m.observer.Log(ctx, "warn", "auth: rate limit bookkeeping failed", map[string]any{
				"app_id": creds.AppID,
				"error":  policyErr.Error(),
			})
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return core.Credential{}, &core.APIError{
			Operation:          OperationTenantToken,
			StatusCode:         res.StatusCode,
			Code:               payload.Code,
			Msg:                payload.Msg,
			CredentialExchange: true,
		}
	}
	if decodeErr != nil {
		return core.Credential{}, fmt.Errorf("auth: decode token response: %w", decodeErr)
	}
	if payload.Code != 0 || strings.TrimSpace(payload.TenantAccessToken) == "" {
		msg := payload.Msg
		if strings.TrimSpace(msg) == "" {
			msg = "Failed to get tenant access token"
		}
		return core.Credential{}, &core.APIError{
			Operation:          OperationTenantToken,
			StatusCode:         res.StatusCode,
			Code:               payload.Code,
			Msg:                msg,
			CredentialExchange: true,
		}
	}

	expire := payload.Expire
	if expire <= 0 {
		expire = m.defaultExpireSeconds
	}
	fields["token_expires_in"] = expire
	return core.Credential{
		SubjectKey: creds.AppID,
		Token:      strings.TrimSpace(payload.TenantAccessToken),
		ExpiresAt:  m.now().Add(time.Duration(expire) * time.Second),
	}, nil
}

var _ core.TokenSource = (*TenantTokenManager)(nil)

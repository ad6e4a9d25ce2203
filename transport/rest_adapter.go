package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
)

const KindREST = "rest"

const (
	HeaderContentType = "Content-Type"
	HeaderLogID       = "X-Tt-Logid"
	ContentTypeJSON   = "application/json; charset=utf-8"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter executes JSON requests against the open platform API.
type RESTAdapter struct {
	Client               HTTPDoer
	BaseURL              string
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Now                  func() time.Time
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	return NewRESTAdapterFromConfig(core.DefaultConfig().API, client)
}

// NewRESTAdapterFromConfig builds an adapter whose relative request URLs are
// resolved against cfg.BaseURL.
func NewRESTAdapterFromConfig(cfg core.APIConfig, client HTTPDoer) *RESTAdapter {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = core.DefaultRequestTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	limit := cfg.MaxResponseBodyBytes
	if limit <= 0 {
		limit = core.DefaultMaxResponseBodyBytes
	}
	return &RESTAdapter{
		Client:               client,
		BaseURL:              strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		DefaultHeaders:       map[string]string{HeaderContentType: ContentTypeJSON},
		MaxResponseBodyBytes: limit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, restError(goerrors.CategoryInternal, "rest adapter requires an http client", nil, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}

	startedAt := a.now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, restError(goerrors.CategoryExternal, "execute http request", err, map[string]any{
			"method": httpReq.Method,
			"path":   httpReq.URL.Path,
		})
	}
	defer httpRes.Body.Close()

	payload, err := readLimited(httpRes, resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes))
	if err != nil {
		return core.TransportResponse{}, err
	}

	metadata := map[string]any{
		"duration_ms": a.now().Sub(startedAt).Milliseconds(),
		"kind":        KindREST,
	}
	if logID := strings.TrimSpace(httpRes.Header.Get(HeaderLogID)); logID != "" {
		metadata["log_id"] = logID
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata:   metadata,
	}, nil
}

// newRequest resolves the URL against BaseURL, merges non-blank query
// values and applies default headers before request headers.
func (a *RESTAdapter) newRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target := JoinURL(a.BaseURL, req.URL)
	if target == "" {
		return nil, restError(goerrors.CategoryBadInput, "request url is required", nil, nil)
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, restError(goerrors.CategoryBadInput, "invalid request url", err, map[string]any{"url": target})
	}
	query := parsed.Query()
	for key, value := range req.Query {
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != "" && value != "" {
			query.Set(key, value)
		}
	}
	parsed.RawQuery = query.Encode()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		return nil, restError(goerrors.CategoryBadInput, "create http request", err, map[string]any{
			"method": method,
			"url":    parsed.String(),
		})
	}
	for _, headers := range []map[string]string{a.DefaultHeaders, req.Headers} {
		for key, value := range headers {
			if key = strings.TrimSpace(key); key != "" {
				httpReq.Header.Set(key, strings.TrimSpace(value))
			}
		}
	}
	return httpReq, nil
}

// readLimited reads one byte past limit so an oversized body is rejected
// instead of silently truncated.
func readLimited(res *http.Response, limit int64) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, restError(goerrors.CategoryExternal, "read response body", err, map[string]any{"status_code": res.StatusCode})
	}
	if int64(len(payload)) > limit {
		return nil, restError(
			goerrors.CategoryExternal,
			fmt.Sprintf("response body exceeds limit of %d bytes", limit),
			nil,
			map[string]any{"status_code": res.StatusCode, "response_limit_b": limit},
		)
	}
	return payload, nil
}

func restError(category goerrors.Category, message string, cause error, fields map[string]any) error {
	metadata := map[string]any{"adapter": KindREST}
	maps.Copy(metadata, fields)
	return core.ServiceError(category, "transport: "+message, cause, metadata)
}

func (a *RESTAdapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

// JoinURL resolves path against base unless path is already absolute.
func JoinURL(base string, path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if path == "" {
		return base
	}
	if base == "" {
		return path
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return core.DefaultMaxResponseBodyBytes
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)

package devkit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-feishu/core"
)

type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// TransportHandler answers a request dynamically, for paginated fixtures.
type TransportHandler func(req core.TransportRequest) TransportScript

type route struct {
	method  string
	suffix  string
	scripts []TransportScript
	handler TransportHandler
	hits    int
}

// FakeTransportAdapter replays scripted responses. Routes are matched by
// method and path suffix; each route plays its scripts in order and repeats
// the last one. Unrouted requests fall back to the positional scripts.
type FakeTransportAdapter struct {
	mu       sync.Mutex
	kind     string
	routes   []*route
	scripts  []TransportScript
	requests []core.TransportRequest
	fallback int
}

func NewFakeTransportAdapter(kind string, scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		kind:    strings.TrimSpace(strings.ToLower(kind)),
		scripts: append([]TransportScript(nil), scripts...),
	}
}

func (a *FakeTransportAdapter) On(method string, pathSuffix string, scripts ...TransportScript) *FakeTransportAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes = append(a.routes, &route{
		method:  strings.ToUpper(strings.TrimSpace(method)),
		suffix:  strings.TrimSpace(pathSuffix),
		scripts: append([]TransportScript(nil), scripts...),
	})
	return a
}

func (a *FakeTransportAdapter) OnFunc(method string, pathSuffix string, handler TransportHandler) *FakeTransportAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes = append(a.routes, &route{
		method:  strings.ToUpper(strings.TrimSpace(method)),
		suffix:  strings.TrimSpace(pathSuffix),
		handler: handler,
	})
	return a
}

func (a *FakeTransportAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *FakeTransportAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("devkit: fake transport adapter is nil")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return core.TransportResponse{}, err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, cloneTransportRequest(req))
	if matched := a.match(req); matched != nil {
		matched.hits++
		if matched.handler != nil {
			script := matched.handler(cloneTransportRequest(req))
			return cloneTransportResponse(script.Response), script.Err
		}
		index := matched.hits - 1
		if index >= len(matched.scripts) {
			index = len(matched.scripts) - 1
		}
		if index >= 0 {
			script := matched.scripts[index]
			return cloneTransportResponse(script.Response), script.Err
		}
	}

	if len(a.routes) > 0 && len(a.scripts) == 0 {
		return core.TransportResponse{
			StatusCode: http.StatusNotFound,
			Headers:    map[string]string{},
			Body:       []byte(`{"code":404,"msg":"no fake route"}`),
		}, nil
	}

	index := a.fallback
	a.fallback++
	if index < len(a.scripts) {
		script := a.scripts[index]
		return cloneTransportResponse(script.Response), script.Err
	}
	if len(a.scripts) > 0 {
		last := a.scripts[len(a.scripts)-1]
		return cloneTransportResponse(last.Response), last.Err
	}
	return core.TransportResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{},
		Metadata:   map[string]any{"kind": a.kind},
	}, nil
}

func (a *FakeTransportAdapter) match(req core.TransportRequest) *route {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(req.URL)
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	for _, candidate := range a.routes {
		if candidate.method != "" && candidate.method != method {
			continue
		}
		if strings.HasSuffix(path, candidate.suffix) {
			return candidate
		}
	}
	return nil
}

func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.TransportRequest, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneTransportRequest(item))
	}
	return out
}

// RequestsTo returns the recorded requests whose path ends with suffix.
func (a *FakeTransportAdapter) RequestsTo(method string, pathSuffix string) []core.TransportRequest {
	method = strings.ToUpper(strings.TrimSpace(method))
	out := []core.TransportRequest{}
	for _, req := range a.Requests() {
		path := req.URL
		if idx := strings.Index(path, "?"); idx >= 0 {
			path = path[:idx]
		}
		if method != "" && strings.ToUpper(req.Method) != method {
			continue
		}
		if strings.HasSuffix(path, pathSuffix) {
			out = append(out, req)
		}
	}
	return out
}

func cloneTransportRequest(in core.TransportRequest) core.TransportRequest {
	out := core.TransportRequest{
		Method:               in.Method,
		URL:                  in.URL,
		Headers:              map[string]string{},
		Query:                map[string]string{},
		Body:                 append([]byte(nil), in.Body...),
		Metadata:             map[string]any{},
		Timeout:              in.Timeout,
		MaxResponseBodyBytes: in.MaxResponseBodyBytes,
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Query {
		out.Query[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

func cloneTransportResponse(in core.TransportResponse) core.TransportResponse {
	out := core.TransportResponse{
		StatusCode: in.StatusCode,
		Headers:    map[string]string{},
		Body:       append([]byte(nil), in.Body...),
		Metadata:   map[string]any{},
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)

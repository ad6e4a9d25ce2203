package devkit

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goliatone/go-feishu/core"
)

// JSONResponse scripts a response whose body is body encoded as JSON.
func JSONResponse(status int, body any) TransportScript {
	raw, err := json.Marshal(body)
	if err != nil {
		return TransportScript{Err: fmt.Errorf("devkit: encode fixture: %w", err)}
	}
	return TransportScript{Response: responseWithBody(status, raw)}
}

// Envelope scripts a {code,msg,data} API envelope on HTTP 200.
func Envelope(code int, msg string, data any) TransportScript {
	return EnvelopeWithStatus(http.StatusOK, code, msg, data)
}

func EnvelopeWithStatus(status int, code int, msg string, data any) TransportScript {
	body := map[string]any{"code": code, "msg": msg}
	if data != nil {
		body["data"] = data
	}
	return JSONResponse(status, body)
}

// TenantToken scripts a successful tenant token exchange.
func TenantToken(token string, expireSeconds int) TransportScript {
	return JSONResponse(http.StatusOK, map[string]any{
		"code":                0,
		"msg":                 "ok",
		"tenant_access_token": token,
		"expire":              expireSeconds,
	})
}

// Task builds a remote task payload as the task API returns it.
func Task(guid string, summary string, updatedAt string) map[string]any {
	return map[string]any{
		"guid":         guid,
		"summary":      summary,
		"description":  "",
		"completed_at": "0",
		"created_at":   updatedAt,
		"updated_at":   updatedAt,
		"status":       "todo",
		"members":      []any{},
		"tasklists":    []any{},
	}
}

// TaskPage builds a list payload.
func TaskPage(items []map[string]any, hasMore bool, pageToken string) map[string]any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return map[string]any{
		"items":      out,
		"has_more":   hasMore,
		"page_token": pageToken,
	}
}

func responseWithBody(status int, body []byte) core.TransportResponse {
	return core.TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:       body,
	}
}

package core

import "strings"

const RedactedValue = "[REDACTED]"

const bearerPrefix = "bearer "

// secretKeyFragments mark a field as sensitive when its lowercased key
// contains any of them. App secrets, tenant tokens and the event
// subscription keys all land here.
var secretKeyFragments = []string{
	"secret",
	"token",
	"password",
	"authorization",
	"credential",
	"signature",
	"encrypt_key",
	"verification",
	"api_key",
	"apikey",
	"access_key",
	"refresh",
}

// traceKeys contain a secret fragment but only ever carry identifiers.
var traceKeys = map[string]struct{}{
	"provider_id":           {},
	"app_id":                {},
	"task_guid":             {},
	"task_key":              {},
	"page_token":            {},
	"run_id":                {},
	"job_id":                {},
	"idempotency_key":       {},
	"invalidate_credential": {},
	"token_expires_in":      {},
	"trace_id":              {},
	"request_id":            {},
}

// RedactSensitiveMap returns a copy of metadata safe to log or persist.
// Nested maps and slices are walked. Bearer headers are masked wherever
// they appear, whatever the key.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		out[key] = redactField(key, value)
	}
	return out
}

func redactField(key string, value any) any {
	if IsSensitiveKey(key) {
		return RedactedValue
	}
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case map[string]string:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = redactField(k, v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactField("", item)
		}
		return out
	case string:
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(typed)), bearerPrefix) {
			return "Bearer " + RedactedValue
		}
		return typed
	default:
		return value
	}
}

// IsSensitiveKey reports whether a field named key must never be written
// in clear.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceKeys[key]; ok {
		return false
	}
	for _, fragment := range secretKeyFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

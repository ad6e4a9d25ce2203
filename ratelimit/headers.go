package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-feishu/core"
)

const (
	headerGatewayLimit = "x-ogw-ratelimit-limit"
	headerGatewayReset = "x-ogw-ratelimit-reset"
	headerLimit        = "x-ratelimit-limit"
	headerRemaining    = "x-ratelimit-remaining"
	headerReset        = "x-ratelimit-reset"
	headerRetryAfter   = "retry-after"
)

// gatewaySignal is what one response says about its bucket. Zero values mean
// the header was absent.
type gatewaySignal struct {
	status     int
	apiCode    bool
	limit      int
	hasLimit   bool
	remaining  int
	hasRemain  bool
	resetAt    time.Time
	retryAfter time.Duration
}

func readGatewaySignal(res core.ProviderResponseMeta, now time.Time) gatewaySignal {
	headers := foldHeaders(res.Headers)
	signal := gatewaySignal{
		status:    res.StatusCode,
		apiCode:   apiCodeThrottled(res.Metadata),
		remaining: RemainingUnknown,
	}

	if limit, ok := headerInt(headers, headerGatewayLimit); ok {
		signal.limit, signal.hasLimit = limit, true
	} else if limit, ok := headerInt(headers, headerLimit); ok {
		signal.limit, signal.hasLimit = limit, true
	}
	if remaining, ok := headerInt(headers, headerRemaining); ok {
		signal.remaining, signal.hasRemain = remaining, true
	}

	// The gateway counts seconds until reset; the generic header is a unix
	// timestamp.
	if seconds, ok := headerInt(headers, headerGatewayReset); ok && seconds > 0 {
		signal.resetAt = now.Add(time.Duration(seconds) * time.Second)
	} else if unix, err := strconv.ParseInt(headers[headerReset], 10, 64); err == nil && unix > 0 {
		signal.resetAt = time.Unix(unix, 0).UTC()
	}

	switch {
	case res.RetryAfter != nil && *res.RetryAfter > 0:
		signal.retryAfter = *res.RetryAfter
	default:
		signal.retryAfter = retryAfterHeader(headers[headerRetryAfter], now)
	}
	return signal
}

// throttled treats a drained counter as throttled only when the gateway
// actually reported one. Server errors never open a window, but a rate
// limit envelope code on any status does.
func (s gatewaySignal) throttled() bool {
	switch {
	case s.apiCode, s.status == http.StatusTooManyRequests:
		return true
	case s.status >= http.StatusInternalServerError:
		return false
	default:
		return s.hasRemain && s.remaining == 0
	}
}

func apiCodeThrottled(metadata map[string]any) bool {
	var code int
	switch value := metadata[MetadataAPICode].(type) {
	case int:
		code = value
	case int64:
		code = int(value)
	case float64:
		code = int(value)
	default:
		return false
	}
	return code == core.ErrorCodeRateLimitExceeded
}

// retryAfterHeader accepts delta seconds or an HTTP date.
func retryAfterHeader(raw string, now time.Time) time.Duration {
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return max(time.Duration(seconds)*time.Second, 0)
	}
	at, err := http.ParseTime(raw)
	if err != nil || !at.After(now) {
		return 0
	}
	return at.Sub(now)
}

func headerInt(headers map[string]string, name string) (int, bool) {
	raw, ok := headers[name]
	if !ok || raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func foldHeaders(headers map[string]string) map[string]string {
	folded := make(map[string]string, len(headers))
	for name, value := range headers {
		folded[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return folded
}

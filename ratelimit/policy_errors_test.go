package ratelimit

import (
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
)

func TestThrottledError_ToServiceError(t *testing.T) {
	mapped := ThrottledError{
		ProviderID: ProviderIDFeishu,
		BucketKey:  BucketTaskAPI,
		RetryAfter: 3 * time.Second,
	}.ToServiceError()

	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.Category != goerrors.CategoryRateLimit {
		t.Fatalf("expected rate limit category, got %v", mapped.Category)
	}
	if mapped.Code != http.StatusTooManyRequests || mapped.TextCode != core.ServiceErrorRateLimited {
		t.Fatalf("unexpected envelope %d/%q", mapped.Code, mapped.TextCode)
	}
	if mapped.Metadata["retry_after_ms"] != int64(3000) || mapped.Metadata["bucket_key"] != BucketTaskAPI {
		t.Fatalf("unexpected metadata %#v", mapped.Metadata)
	}
}

// Package paging drains cursor paginated list endpoints.
package paging

import (
	"context"
	"strings"

	"github.com/goliatone/go-feishu/core"
	glog "github.com/goliatone/go-logger/glog"
)

// PageFunc fetches one page starting at cursor. An empty cursor requests
// the first page.
type PageFunc[T any] func(ctx context.Context, cursor string, pageSize int) (core.Page[T], error)

type Options struct {
	PageSize int
	MaxPages int
	Logger   core.Logger
	// Operation names the list call in log lines.
	Operation string
}

// Result holds every item read, in page order. Err is the failure that cut
// the walk short, if any; it is logged and never returned.
type Result[T any] struct {
	Items     []T
	Pages     int
	Truncated bool
	Err       error
}

// FetchAll walks pages until the server reports no more, the cursor comes
// back empty, or MaxPages pages were read.
func FetchAll[T any](ctx context.Context, fetch PageFunc[T], opts Options) Result[T] {
	result := Result[T]{Items: []T{}}
	if fetch == nil {
		return result
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	operation := strings.TrimSpace(opts.Operation)
	if operation == "" {
		operation = "list"
	}
	pageSize := core.PaginationConfig{}.EffectivePageSize(opts.PageSize)
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = core.DefaultMaxPages
	}

	cursor := ""
	for result.Pages < maxPages {
		if err := ctx.Err(); err != nil {
			result.Truncated = true
			result.Err = err
			logger.Warn("paging: fetch cancelled", "operation", operation, "pages", result.Pages, "error", err.Error())
			return result
		}
		page, err := fetch(ctx, cursor, pageSize)
		if err != nil {
			result.Truncated = true
			result.Err = err
			logger.Error("paging: page fetch failed", "operation", operation, "pages", result.Pages, "error", err.Error())
			return result
		}
		result.Pages++
		result.Items = append(result.Items, page.Items...)

		next := strings.TrimSpace(page.NextCursor)
		if !page.HasMore || next == "" {
			return result
		}
		cursor = next
	}

	result.Truncated = true
	logger.Warn("paging: reached max pages limit", "operation", operation, "max_pages", maxPages, "items", len(result.Items))
	return result
}

package paging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/goliatone/go-feishu/core"
)

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Trace(msg string, _ ...any) { l.add("trace", msg) }
func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }
func (l *recordingLogger) Fatal(msg string, _ ...any) { l.add("fatal", msg) }

func (l *recordingLogger) WithContext(context.Context) core.Logger { return l }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.level == level && entry.msg == msg {
			return true
		}
	}
	return false
}

func pagesOf(pages ...[]int) PageFunc[int] {
	return func(_ context.Context, cursor string, _ int) (core.Page[int], error) {
		index := 0
		if cursor != "" {
			parsed, err := strconv.Atoi(cursor)
			if err != nil {
				return core.Page[int]{}, err
			}
			index = parsed
		}
		page := core.Page[int]{Items: pages[index]}
		if index+1 < len(pages) {
			page.HasMore = true
			page.NextCursor = strconv.Itoa(index + 1)
		}
		return page, nil
	}
}

func TestFetchAll_StopsWhenHasMoreIsFalse(t *testing.T) {
	result := FetchAll(context.Background(), pagesOf([]int{1, 2}, []int{3}, []int{4, 5}), Options{})
	if result.Pages != 3 {
		t.Fatalf("expected 3 pages, got %d", result.Pages)
	}
	want := []int{1, 2, 3, 4, 5}
	if fmt.Sprint(result.Items) != fmt.Sprint(want) {
		t.Fatalf("expected %v in page order, got %v", want, result.Items)
	}
	if result.Truncated || result.Err != nil {
		t.Fatalf("expected a complete walk, got %+v", result)
	}
}

func TestFetchAll_StopsOnEmptyCursor(t *testing.T) {
	calls := 0
	fetch := func(context.Context, string, int) (core.Page[int], error) {
		calls++
		return core.Page[int]{Items: []int{calls}, HasMore: true}, nil
	}
	result := FetchAll(context.Background(), fetch, Options{})
	if calls != 1 || len(result.Items) != 1 {
		t.Fatalf("expected walk to stop on empty cursor, calls=%d items=%v", calls, result.Items)
	}
}

func TestFetchAll_MaxPagesBoundsInfinitePaginator(t *testing.T) {
	logger := &recordingLogger{}
	calls := 0
	fetch := func(_ context.Context, cursor string, _ int) (core.Page[int], error) {
		calls++
		return core.Page[int]{Items: []int{calls}, HasMore: true, NextCursor: "next-" + strconv.Itoa(calls)}, nil
	}
	result := FetchAll(context.Background(), fetch, Options{MaxPages: 2, Logger: logger})
	if calls != 2 || result.Pages != 2 {
		t.Fatalf("expected exactly 2 page calls, got calls=%d pages=%d", calls, result.Pages)
	}
	if !result.Truncated || result.Err != nil {
		t.Fatalf("expected truncated result without error, got %+v", result)
	}
	if !logger.has("warn", "paging: reached max pages limit") {
		t.Fatalf("expected max pages warning")
	}
}

func TestFetchAll_FailingPageReturnsPagesRead(t *testing.T) {
	logger := &recordingLogger{}
	boom := errors.New("boom")
	calls := 0
	fetch := func(_ context.Context, _ string, _ int) (core.Page[int], error) {
		calls++
		if calls == 2 {
			return core.Page[int]{}, boom
		}
		return core.Page[int]{Items: []int{calls}, HasMore: true, NextCursor: "c"}, nil
	}
	result := FetchAll(context.Background(), fetch, Options{Logger: logger})
	if len(result.Items) != 1 || result.Items[0] != 1 {
		t.Fatalf("expected first page items only, got %v", result.Items)
	}
	if !result.Truncated || !errors.Is(result.Err, boom) {
		t.Fatalf("expected truncated result carrying the page error, got %+v", result)
	}
	if !logger.has("error", "paging: page fetch failed") {
		t.Fatalf("expected page failure to be logged")
	}
}

func TestFetchAll_CancellationAbortsBeforeNextPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fetch := func(context.Context, string, int) (core.Page[int], error) {
		calls++
		cancel()
		return core.Page[int]{Items: []int{calls}, HasMore: true, NextCursor: "c"}, nil
	}
	result := FetchAll(ctx, fetch, Options{})
	if calls != 1 {
		t.Fatalf("expected no page request after cancellation, got %d calls", calls)
	}
	if len(result.Items) != 1 || !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected pages read so far plus cancellation, got %+v", result)
	}
}

func TestFetchAll_ClampsPageSize(t *testing.T) {
	var sizes []int
	fetch := func(_ context.Context, _ string, pageSize int) (core.Page[int], error) {
		sizes = append(sizes, pageSize)
		return core.Page[int]{}, nil
	}
	FetchAll(context.Background(), fetch, Options{PageSize: 500})
	FetchAll(context.Background(), fetch, Options{})
	if len(sizes) != 2 || sizes[0] != core.MaxPageSize || sizes[1] != core.DefaultPageSize {
		t.Fatalf("unexpected page sizes %v", sizes)
	}
}

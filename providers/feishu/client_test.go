package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-feishu/auth"
	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/providers/devkit"
	"github.com/goliatone/go-feishu/ratelimit"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, _ core.Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func testProviderConfig() core.ProviderConfig {
	cfg := core.DefaultProviderConfig()
	cfg.Enabled = true
	cfg.AppID = "cli_test"
	cfg.AppSecret = "secret"
	return cfg
}

func newTestClient(t *testing.T, fake *devkit.FakeTransportAdapter, notifier core.Notifier, policy core.RateLimitPolicy) *Client {
	t.Helper()
	classifier := core.NewClassifier(notifier, nil)
	tokens, err := auth.NewTenantTokenManager(auth.TenantTokenManagerConfig{
		Transport:  fake,
		Classifier: classifier,
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	client, err := NewClient(ClientConfig{
		Transport:       fake,
		Tokens:          tokens,
		Classifier:      classifier,
		RateLimitPolicy: policy,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func withToken(fake *devkit.FakeTransportAdapter) *devkit.FakeTransportAdapter {
	return fake.On(http.MethodPost, auth.TenantTokenPath, devkit.TenantToken("t-1", 7200))
}

func TestNewClient_RequiresTransportAndTokens(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatalf("expected missing transport error")
	}
	if _, err := NewClient(ClientConfig{Transport: devkit.NewFakeTransportAdapter("rest")}); err == nil {
		t.Fatalf("expected missing token source error")
	}
}

func TestClient_ListTasksSendsFiltersAndBearerToken(t *testing.T) {
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodGet, TasksPath, devkit.Envelope(0, "ok", devkit.TaskPage(
			[]map[string]any{devkit.Task("g-1", "One", "1700000000000")},
			true,
			"next-1",
		)))
	client := newTestClient(t, fake, nil, nil)

	cfg := testProviderConfig()
	cfg.FilterUserID = "ou_9"
	cfg.FilterTasklistIDs = []string{"tl-a", " tl-b ", ""}
	page, err := client.ListTasks(context.Background(), cfg, "cursor-1", 500)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].GUID != "g-1" {
		t.Fatalf("unexpected items %#v", page.Items)
	}
	if !page.HasMore || page.NextCursor != "next-1" {
		t.Fatalf("unexpected cursor state %#v", page)
	}

	requests := fake.RequestsTo(http.MethodGet, TasksPath)
	if len(requests) != 1 {
		t.Fatalf("expected one list request, got %d", len(requests))
	}
	req := requests[0]
	if req.Headers["Authorization"] != "Bearer t-1" {
		t.Fatalf("unexpected authorization header %q", req.Headers["Authorization"])
	}
	expected := map[string]string{
		"page_size":      "100",
		"page_token":     "cursor-1",
		"user_id_type":   "open_id",
		"user_id":        "ou_9",
		"tasklist_guids": "tl-a,tl-b",
	}
	for key, want := range expected {
		if got := req.Query[key]; got != want {
			t.Fatalf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestClient_GetAllTasksFollowsCursor(t *testing.T) {
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		OnFunc(http.MethodGet, TasksPath, func(req core.TransportRequest) devkit.TransportScript {
			switch req.Query["page_token"] {
			case "":
				return devkit.Envelope(0, "ok", devkit.TaskPage(
					[]map[string]any{devkit.Task("g-1", "One", "1"), devkit.Task("g-2", "Two", "2")},
					true,
					"p2",
				))
			default:
				return devkit.Envelope(0, "ok", devkit.TaskPage(
					[]map[string]any{devkit.Task("g-3", "Three", "3")},
					false,
					"",
				))
			}
		})
	client := newTestClient(t, fake, nil, nil)

	result := client.GetAllTasks(context.Background(), testProviderConfig())
	if result.Err != nil || result.Truncated {
		t.Fatalf("unexpected truncation: %+v", result)
	}
	if result.Pages != 2 || len(result.Items) != 3 {
		t.Fatalf("expected 2 pages with 3 items, got %d/%d", result.Pages, len(result.Items))
	}
	for index, guid := range []string{"g-1", "g-2", "g-3"} {
		if result.Items[index].GUID != guid {
			t.Fatalf("item %d = %q, want %q", index, result.Items[index].GUID, guid)
		}
	}
}

func TestClient_GetAllTasksKeepsPagesBeforeFailure(t *testing.T) {
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		OnFunc(http.MethodGet, TasksPath, func(req core.TransportRequest) devkit.TransportScript {
			if req.Query["page_token"] == "" {
				return devkit.Envelope(0, "ok", devkit.TaskPage(
					[]map[string]any{devkit.Task("g-1", "One", "1")},
					true,
					"p2",
				))
			}
			return devkit.EnvelopeWithStatus(http.StatusInternalServerError, 0, "boom", nil)
		})
	client := newTestClient(t, fake, nil, nil)

	result := client.GetAllTasks(context.Background(), testProviderConfig())
	if !result.Truncated || result.Err == nil {
		t.Fatalf("expected truncated result")
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected first page items to survive, got %d", len(result.Items))
	}
}

func TestClient_SearchTasksMatchesLocally(t *testing.T) {
	described := devkit.Task("g-2", "Other", "2")
	described["description"] = "Mentions the Budget review"
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodGet, TasksPath, devkit.Envelope(0, "ok", devkit.TaskPage(
			[]map[string]any{
				devkit.Task("g-1", "Budget draft", "1"),
				described,
				devkit.Task("budget-guid", "Third", "3"),
				devkit.Task("g-4", "Unrelated", "4"),
			},
			false,
			"",
		)))
	client := newTestClient(t, fake, nil, nil)

	matches, err := client.SearchTasks(context.Background(), "  BUDGET ", testProviderConfig())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}

	empty, err := client.SearchTasks(context.Background(), "   ", testProviderConfig())
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result for blank term")
	}
	if got := len(fake.RequestsTo(http.MethodGet, TasksPath)); got != 1 {
		t.Fatalf("expected blank search to skip the network, got %d list calls", got)
	}
}

func TestClient_ApplicationCodeIsClassifiedAndNotified(t *testing.T) {
	notifier := &recordingNotifier{}
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodGet, TasksPath+"/g-1", devkit.Envelope(1470400, "task not found", nil))
	client := newTestClient(t, fake, notifier, nil)

	_, err := client.GetTask(context.Background(), "g-1", testProviderConfig())
	handled, ok := core.AsHandled(err)
	if !ok {
		t.Fatalf("expected handled error, got %v", err)
	}
	if handled.Classification.Kind != core.ErrorKindApplication {
		t.Fatalf("expected application kind, got %s", handled.Classification.Kind)
	}
	if handled.Classification.ShouldInvalidateCredential {
		t.Fatalf("application errors must not invalidate the token")
	}
	messages := notifier.Messages()
	if len(messages) != 1 || messages[0] != "Feishu: [1470400] task not found" {
		t.Fatalf("unexpected notifications %#v", messages)
	}
}

func TestClient_UnauthorizedEvictsToken(t *testing.T) {
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodGet, TasksPath+"/g-1",
			devkit.EnvelopeWithStatus(http.StatusUnauthorized, core.ErrorCodeTenantAccessTokenInvalid, "invalid token", nil),
			devkit.Envelope(0, "ok", map[string]any{"task": devkit.Task("g-1", "One", "1")}),
		)
	client := newTestClient(t, fake, nil, nil)
	cfg := testProviderConfig()

	_, err := client.GetTask(context.Background(), "g-1", cfg)
	if got := core.Resolve(err); got.Kind != core.ErrorKindAuthentication || !got.ShouldInvalidateCredential {
		t.Fatalf("expected authentication classification, got %+v", got)
	}
	if _, err := client.GetTask(context.Background(), "g-1", cfg); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if got := len(fake.RequestsTo(http.MethodPost, auth.TenantTokenPath)); got != 2 {
		t.Fatalf("expected token refetch after eviction, got %d exchanges", got)
	}
}

func TestClient_GetTaskRequiresTaskInResponse(t *testing.T) {
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodGet, TasksPath+"/g-1", devkit.Envelope(0, "ok", map[string]any{}))
	client := newTestClient(t, fake, nil, nil)

	if _, err := client.GetTask(context.Background(), "g-1", testProviderConfig()); !core.IsHandled(err) {
		t.Fatalf("expected handled error for missing task, got %v", err)
	}
}

func TestClient_UpdateTaskSendsOnlyChangedFields(t *testing.T) {
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodPatch, TasksPath+"/g-1", devkit.Envelope(0, "ok", map[string]any{"task": devkit.Task("g-1", "Renamed", "2")}))
	client := newTestClient(t, fake, nil, nil)

	summary := "Renamed"
	issue, err := client.UpdateTask(context.Background(), "g-1", core.TaskPatch{Summary: &summary}, testProviderConfig())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if issue.Summary != "Renamed" {
		t.Fatalf("expected updated issue, got %q", issue.Summary)
	}

	requests := fake.RequestsTo(http.MethodPatch, TasksPath+"/g-1")
	if len(requests) != 1 {
		t.Fatalf("expected one patch, got %d", len(requests))
	}
	var body map[string]any
	if err := json.Unmarshal(requests[0].Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	task, _ := body["task"].(map[string]any)
	if task["summary"] != "Renamed" {
		t.Fatalf("expected summary in body, got %#v", task)
	}
	if _, ok := task["description"]; ok {
		t.Fatalf("description must not be sent when unchanged")
	}
	fields, _ := body["update_fields"].([]any)
	if len(fields) != 1 || fields[0] != "summary" {
		t.Fatalf("unexpected update_fields %#v", body["update_fields"])
	}
	if requests[0].Query["user_id_type"] != "open_id" {
		t.Fatalf("expected open_id user id type")
	}

	if _, err := client.UpdateTask(context.Background(), "g-1", core.TaskPatch{}, testProviderConfig()); err == nil {
		t.Fatalf("expected empty patch to be rejected")
	}
}

func TestClient_CompleteUncompleteAndComment(t *testing.T) {
	done := devkit.Task("g-1", "One", "2")
	done["completed_at"] = "1700000000000"
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodPost, TasksPath+"/g-1/complete", devkit.Envelope(0, "ok", map[string]any{"task": done})).
		On(http.MethodPost, TasksPath+"/g-1/uncomplete", devkit.Envelope(0, "ok", map[string]any{"task": devkit.Task("g-1", "One", "3")})).
		On(http.MethodPost, CommentsPath, devkit.Envelope(0, "ok", map[string]any{"comment_id": "c-1"}))
	client := newTestClient(t, fake, nil, nil)
	cfg := testProviderConfig()
	ctx := context.Background()

	completed, err := client.CompleteTask(ctx, "g-1", cfg)
	if err != nil || !completed.IsCompleted() {
		t.Fatalf("complete: %v %#v", err, completed)
	}
	reopened, err := client.UncompleteTask(ctx, "g-1", cfg)
	if err != nil || reopened.IsCompleted() {
		t.Fatalf("uncomplete: %v %#v", err, reopened)
	}
	comment, err := client.CreateComment(ctx, "g-1", "hello", cfg)
	if err != nil || comment.ID != "c-1" {
		t.Fatalf("comment: %v %#v", err, comment)
	}

	requests := fake.RequestsTo(http.MethodPost, CommentsPath)
	var body map[string]any
	if err := json.Unmarshal(requests[0].Body, &body); err != nil {
		t.Fatalf("decode comment body: %v", err)
	}
	if body["content"] != "hello" || body["parent_id"] != "g-1" {
		t.Fatalf("unexpected comment body %#v", body)
	}
}

func TestClient_CreateCommentRejectsEmptyData(t *testing.T) {
	cases := map[string]devkit.TransportScript{
		"no data":    devkit.Envelope(0, "ok", nil),
		"no comment": devkit.Envelope(0, "ok", map[string]any{}),
	}
	for name, script := range cases {
		t.Run(name, func(t *testing.T) {
			fake := withToken(devkit.NewFakeTransportAdapter("rest")).
				On(http.MethodPost, CommentsPath, script)
			client := newTestClient(t, fake, nil, nil)

			comment, err := client.CreateComment(context.Background(), "g-1", "hello", testProviderConfig())
			if err == nil {
				t.Fatalf("expected empty response to fail, got %#v", comment)
			}
			handled, ok := core.AsHandled(err)
			if !ok || handled.Classification.Kind != core.ErrorKindUnknown {
				t.Fatalf("expected handled unknown error, got %v", err)
			}
		})
	}
}

func TestClient_TestConnection(t *testing.T) {
	notifier := &recordingNotifier{}
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodGet, TasksPath, devkit.Envelope(0, "ok", devkit.TaskPage(nil, false, "")))
	client := newTestClient(t, fake, notifier, nil)

	missing := testProviderConfig()
	missing.AppSecret = ""
	if client.TestConnection(context.Background(), missing) {
		t.Fatalf("expected missing secret to fail the test")
	}
	if len(fake.Requests()) != 0 {
		t.Fatalf("expected no network calls for missing credentials")
	}
	if messages := notifier.Messages(); len(messages) != 1 || messages[0] != core.MessageMissingAppSecret {
		t.Fatalf("unexpected notifications %#v", messages)
	}

	if !client.TestConnection(context.Background(), testProviderConfig()) {
		t.Fatalf("expected connection test to pass")
	}
	list := fake.RequestsTo(http.MethodGet, TasksPath)
	if len(list) != 1 || list[0].Query["page_size"] != "1" {
		t.Fatalf("expected a single one item list call, got %#v", list)
	}
}

func TestClient_ThrottledAppCodeBlocksNextCall(t *testing.T) {
	policy := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	fake := withToken(devkit.NewFakeTransportAdapter("rest")).
		On(http.MethodGet, TasksPath, devkit.Envelope(core.ErrorCodeRateLimitExceeded, "too many requests", nil))
	client := newTestClient(t, fake, nil, policy)
	cfg := testProviderConfig()

	_, err := client.ListTasks(context.Background(), cfg, "", 10)
	if got := core.Resolve(err); got.Kind != core.ErrorKindRateLimit {
		t.Fatalf("expected rate limit kind, got %+v", got)
	}
	_, err = client.ListTasks(context.Background(), cfg, "", 10)
	if got := core.Resolve(err); got.Kind != core.ErrorKindRateLimit {
		t.Fatalf("expected throttled call to classify as rate limit, got %+v", got)
	}
	if got := len(fake.RequestsTo(http.MethodGet, TasksPath)); got != 1 {
		t.Fatalf("expected throttled call to skip the network, got %d", got)
	}
}

func TestTaskPathEscapesGUID(t *testing.T) {
	if got := taskPath("a/b", "complete"); !strings.HasSuffix(got, "/a%2Fb/complete") {
		t.Fatalf("unexpected path %q", got)
	}
}

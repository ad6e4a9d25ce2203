package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
	"github.com/goliatone/go-feishu/paging"
	"github.com/goliatone/go-feishu/ratelimit"
	"github.com/goliatone/go-feishu/transport"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	TasksPath    = "/task/v2/tasks"
	CommentsPath = "/task/v2/comments"
)

const (
	OperationListTasks      = "list_tasks"
	OperationGetTask        = "get_task"
	OperationUpdateTask     = "update_task"
	OperationCompleteTask   = "complete_task"
	OperationUncompleteTask = "uncomplete_task"
	OperationCreateComment  = "create_comment"
	OperationTestConnection = "test_connection"
)

type ClientConfig struct {
	Transport       core.TransportAdapter
	Tokens          core.TokenSource
	Classifier      *core.Classifier
	RateLimitPolicy core.RateLimitPolicy
	Logger          core.Logger
	Metrics         core.MetricsRecorder
	Pagination      core.PaginationConfig
	RequestTimeout  time.Duration
	Now             func() time.Time
}

// Client calls the task v2 API on behalf of one or more apps. Credentials
// come from the provider config passed to each call.
type Client struct {
	transport  core.TransportAdapter
	tokens     core.TokenSource
	classifier *core.Classifier
	policy     core.RateLimitPolicy
	logger     core.Logger
	observer   core.Observer
	pagination core.PaginationConfig
	timeout    time.Duration
	now        func() time.Time
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("feishu: transport is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("feishu: token source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = core.NewClassifier(nil, logger)
	}
	pagination := cfg.Pagination
	if pagination.MaxPageSize <= 0 {
		pagination.MaxPageSize = core.MaxPageSize
	}
	if pagination.PageSize <= 0 {
		pagination.PageSize = core.DefaultPageSize
	}
	if pagination.MaxPages <= 0 {
		pagination.MaxPages = core.DefaultMaxPages
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Client{
		transport:  cfg.Transport,
		tokens:     cfg.Tokens,
		classifier: classifier,
		policy:     cfg.RateLimitPolicy,
		logger:     logger,
		observer:   core.Observer{Logger: logger, Metrics: cfg.Metrics, Now: now},
		pagination: pagination,
		timeout:    cfg.RequestTimeout,
		now:        now,
	}, nil
}

// ListTasks reads one page of tasks visible to the app.
func (c *Client) ListTasks(
	ctx context.Context,
	cfg core.ProviderConfig,
	pageToken string,
	pageSize int,
) (core.Page[core.Issue], error) {
	query := map[string]string{
		"page_size": strconv.Itoa(c.pagination.EffectivePageSize(pageSize)),
	}
	if token := strings.TrimSpace(pageToken); token != "" {
		query["page_token"] = token
	}
	if userID := strings.TrimSpace(cfg.FilterUserID); userID != "" {
		query["user_id_type"] = string(core.UserIDTypeOpenID)
		query["user_id"] = userID
	}
	if lists := tasklistFilter(cfg.FilterTasklistIDs); lists != "" {
		query["tasklist_guids"] = lists
	}

	var data taskListData
	err := c.call(ctx, cfg, apiCall{
		operation: OperationListTasks,
		method:    http.MethodGet,
		path:      TasksPath,
		query:     query,
		fields:    map[string]any{"page_token": pageToken},
	}, &data)
	if err != nil {
		return core.Page[core.Issue]{}, err
	}
	page := core.Page[core.Issue]{
		Items:      make([]core.Issue, 0, len(data.Items)),
		NextCursor: data.PageToken,
		HasMore:    data.HasMore,
	}
	for _, task := range data.Items {
		page.Items = append(page.Items, ToIssue(task))
	}
	return page, nil
}

// GetAllTasks drains the task list with the largest page size. A failing
// page ends the walk; what was read so far is returned.
func (c *Client) GetAllTasks(ctx context.Context, cfg core.ProviderConfig) paging.Result[core.Issue] {
	return paging.FetchAll(ctx, func(ctx context.Context, cursor string, pageSize int) (core.Page[core.Issue], error) {
		return c.ListTasks(ctx, cfg, cursor, pageSize)
	}, paging.Options{
		PageSize:  c.pagination.MaxPageSize,
		MaxPages:  c.pagination.MaxPages,
		Logger:    c.logger,
		Operation: OperationListTasks,
	})
}

// SearchTasks filters every readable task locally; the API has no search
// endpoint.
func (c *Client) SearchTasks(ctx context.Context, term string, cfg core.ProviderConfig) ([]core.Issue, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []core.Issue{}, nil
	}
	if err := core.ValidateCredentials(cfg.Credentials()); err != nil {
		return nil, c.classifier.Handle(ctx, err, map[string]any{"app_id": cfg.AppID})
	}
	all := c.GetAllTasks(ctx, cfg)
	matches := make([]core.Issue, 0, len(all.Items))
	for _, issue := range all.Items {
		if matchesTerm(issue, term) {
			matches = append(matches, issue)
		}
	}
	return matches, nil
}

// GetTask reads one task by guid.
func (c *Client) GetTask(ctx context.Context, guid string, cfg core.ProviderConfig) (core.Issue, error) {
	return c.taskCall(ctx, cfg, OperationGetTask, http.MethodGet, taskPath(guid, ""), nil, guid)
}

// UpdateTask patches the fields set on patch.
func (c *Client) UpdateTask(
	ctx context.Context,
	guid string,
	patch core.TaskPatch,
	cfg core.ProviderConfig,
) (core.Issue, error) {
	if patch.IsEmpty() {
		return core.Issue{}, goerrors.New("feishu: task patch is empty", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	body := taskPatchBody{
		Task: taskPatchFields{
			Summary:     patch.Summary,
			Description: patch.Description,
			Extra:       patch.Extra,
		},
		UpdateFields: patch.Fields(),
	}
	if patch.Due != nil {
		body.Task.Due = &RemoteDue{Timestamp: patch.Due.Timestamp, IsAllDay: patch.Due.IsAllDay}
	}
	return c.taskCall(ctx, cfg, OperationUpdateTask, http.MethodPatch, taskPath(guid, ""), body, guid)
}

func (c *Client) CompleteTask(ctx context.Context, guid string, cfg core.ProviderConfig) (core.Issue, error) {
	return c.taskCall(ctx, cfg, OperationCompleteTask, http.MethodPost, taskPath(guid, "complete"), struct{}{}, guid)
}

func (c *Client) UncompleteTask(ctx context.Context, guid string, cfg core.ProviderConfig) (core.Issue, error) {
	return c.taskCall(ctx, cfg, OperationUncompleteTask, http.MethodPost, taskPath(guid, "uncomplete"), struct{}{}, guid)
}

// CreateComment posts content as a plain comment on the task.
func (c *Client) CreateComment(
	ctx context.Context,
	guid string,
	content string,
	cfg core.ProviderConfig,
) (core.Comment, error) {
	var data commentData
	err := c.call(ctx, cfg, apiCall{
		operation: OperationCreateComment,
		method:    http.MethodPost,
		path:      CommentsPath,
		query:     map[string]string{"user_id_type": string(core.UserIDTypeOpenID)},
		body:      commentBody{Content: content, ParentID: strings.TrimSpace(guid)},
		fields:    map[string]any{"task_guid": guid},
	}, &data)
	if err != nil {
		return core.Comment{}, err
	}
	return core.Comment{ID: data.id()}, nil
}

// TestConnection checks the settings, exchanges the credentials and lists a
// single task. Failures are reported to the user and yield false.
func (c *Client) TestConnection(ctx context.Context, cfg core.ProviderConfig) bool {
	fields := map[string]any{"app_id": cfg.AppID, "operation": OperationTestConnection}
	if err := core.ValidateCredentials(cfg.Credentials()); err != nil {
		_ = c.classifier.Handle(ctx, err, fields)
		return false
	}
	if _, err := c.ListTasks(ctx, cfg, "", core.DefaultConnectionTestPageSize); err != nil {
		c.observer.Log(ctx, "warn", "feishu: connection test failed", fields)
		return false
	}
	c.observer.Log(ctx, "info", "feishu: connection test successful", fields)
	return true
}

type apiCall struct {
	operation string
	method    string
	path      string
	query     map[string]string
	body      any
	fields    map[string]any
}

func (c *Client) taskCall(
	ctx context.Context,
	cfg core.ProviderConfig,
	operation string,
	method string,
	path string,
	body any,
	guid string,
) (core.Issue, error) {
	var data taskData
	err := c.call(ctx, cfg, apiCall{
		operation: operation,
		method:    method,
		path:      path,
		query:     map[string]string{"user_id_type": string(core.UserIDTypeOpenID)},
		body:      body,
		fields:    map[string]any{"task_guid": guid},
	}, &data)
	if err != nil {
		return core.Issue{}, err
	}
	return ToIssue(*data.Task), nil
}

// call runs one authenticated request. Every failure leaves as a handled
// error; an authentication failure also evicts the app's cached token.
func (c *Client) call(ctx context.Context, cfg core.ProviderConfig, req apiCall, out any) (err error) {
	if c == nil {
		return fmt.Errorf("feishu: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	creds := cfg.Credentials()
	fields := map[string]any{}
	for key, value := range req.fields {
		fields[key] = value
	}
	fields["provider_id"] = ProviderID
	fields["app_id"] = creds.AppID
	fields["operation"] = req.operation

	startedAt := c.now()
	defer func() {
		c.observer.Observe(ctx, startedAt, req.operation, err, fields)
	}()

	token, err := c.tokens.EnsureToken(ctx, creds)
	if err != nil {
		return err
	}
	if err = c.roundTrip(ctx, creds.AppID, token, req, out); err != nil {
		return c.fail(ctx, creds.AppID, err, fields)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, appID string, token string, req apiCall, out any) error {
	key := ratelimit.AppKey(appID, ratelimit.BucketTaskAPI)
	if c.policy != nil {
		if err := c.policy.BeforeCall(ctx, key); err != nil {
			return err
		}
	}

	var body []byte
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("feishu: encode %s request: %w", req.operation, err)
		}
		body = encoded
	}
	res, err := c.transport.Do(ctx, core.TransportRequest{
		Method: req.method,
		URL:    req.path,
		Headers: map[string]string{
			"Authorization":             "Bearer " + token,
			transport.HeaderContentType: transport.ContentTypeJSON,
		},
		Query:    req.query,
		Body:     body,
		Timeout:  c.timeout,
		Metadata: map[string]any{"operation": req.operation},
	})
	if err != nil {
		return err
	}

	var env envelope
	decodeErr := json.Unmarshal(res.Body, &env)
	c.afterCall(ctx, key, res, env.Code, decodeErr == nil)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &core.APIError{Operation: req.operation, StatusCode: res.StatusCode, Code: env.Code, Msg: env.Msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("feishu: decode %s response: %w", req.operation, decodeErr)
	}
	if env.Code != core.ErrorCodeSuccess {
		return &core.APIError{Operation: req.operation, StatusCode: res.StatusCode, Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return missingData(req.operation, res.StatusCode, out)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("feishu: decode %s data: %w", req.operation, err)
	}
	return missingData(req.operation, res.StatusCode, out)
}

// missingData rejects item responses that carry no task or comment.
func missingData(operation string, status int, out any) error {
	switch data := out.(type) {
	case *taskData:
		if data.Task != nil {
			return nil
		}
		return &core.APIError{Operation: operation, StatusCode: status, Msg: "task missing from response"}
	case *commentData:
		if data.id() != "" {
			return nil
		}
		return &core.APIError{Operation: operation, StatusCode: status, Msg: "comment missing from response"}
	default:
		return nil
	}
}

func (c *Client) afterCall(ctx context.Context, key core.RateLimitKey, res core.TransportResponse, code int, decoded bool) {
	if c.policy == nil {
		return
	}
	meta := core.ProviderResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}
	if decoded && code != core.ErrorCodeSuccess {
		meta.Metadata = map[string]any{ratelimit.MetadataAPICode: code}
	}
	if err := c.policy.AfterCall(ctx, key, meta); err != nil {
		c.observer.Log(ctx, "warn", "feishu: rate limit bookkeeping failed", map[string]any{
			"app_id": key.ScopeID,
			"error":  err.Error(),
		})
	}
}

func (c *Client) fail(ctx context.Context, appID string, err error, fields map[string]any) error {
	handled := c.classifier.Handle(ctx, err, fields)
	if h, ok := core.AsHandled(handled); ok && h.Classification.ShouldInvalidateCredential {
		if invalidateErr := c.tokens.Invalidate(ctx, appID); invalidateErr != nil {
			c.observer.Log(ctx, "warn", "feishu: token invalidation failed", map[string]any{
				"app_id": appID,
				"error":  invalidateErr.Error(),
			})
		}
	}
	return handled
}

func taskPath(guid string, action string) string {
	path := TasksPath + "/" + url.PathEscape(strings.TrimSpace(guid))
	if action != "" {
		path += "/" + action
	}
	return path
}

func tasklistFilter(ids []string) string {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	return strings.Join(cleaned, ",")
}

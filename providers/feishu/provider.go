// Package feishu implements the task issue provider on top of the Feishu
// open platform task v2 API.
package feishu

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
	glog "github.com/goliatone/go-logger/glog"
)

const ProviderID = "feishu"

type ProviderOptions struct {
	Client       *Client
	Reconciler   *feishusync.Reconciler
	Logger       core.Logger
	PollInterval time.Duration
	// Location renders due dates in notes. Defaults to time.Local.
	Location *time.Location
}

// Provider exposes the task API through the issue provider contract.
type Provider struct {
	client       *Client
	reconciler   *feishusync.Reconciler
	observer     core.Observer
	pollInterval time.Duration
	location     *time.Location
}

func NewProvider(opts ProviderOptions) (*Provider, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("feishu: provider requires a client")
	}
	reconciler := opts.Reconciler
	if reconciler == nil {
		var err error
		reconciler, err = feishusync.NewReconciler(feishusync.ReconcilerConfig{
			API:        opts.Client,
			Logger:     opts.Logger,
			ProviderID: ProviderID,
		})
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = core.DefaultPollInterval
	}
	location := opts.Location
	if location == nil {
		location = time.Local
	}
	return &Provider{
		client:       opts.Client,
		reconciler:   reconciler,
		observer:     core.Observer{Logger: logger},
		pollInterval: interval,
		location:     location,
	}, nil
}

func (*Provider) ID() string {
	return ProviderID
}

func (p *Provider) PollInterval() time.Duration {
	return p.pollInterval
}

func (*Provider) IsEnabled(cfg core.ProviderConfig) bool {
	return cfg.IsEnabled()
}

func (*Provider) IssueLink(issueID string) string {
	return IssueURL(issueID)
}

func (p *Provider) TestConnection(ctx context.Context, cfg core.ProviderConfig) bool {
	return p.client.TestConnection(ctx, cfg)
}

func (p *Provider) GetByID(ctx context.Context, issueID string, cfg core.ProviderConfig) (core.Issue, error) {
	return p.client.GetTask(ctx, issueID, cfg)
}

func (p *Provider) Search(ctx context.Context, term string, cfg core.ProviderConfig) ([]core.SearchResult, error) {
	if !cfg.SearchIssuesFromAPI {
		return []core.SearchResult{}, nil
	}
	issues, err := p.client.SearchTasks(ctx, term, cfg)
	if err != nil {
		return nil, err
	}
	results := make([]core.SearchResult, 0, len(issues))
	for _, issue := range issues {
		results = append(results, ToSearchResult(issue))
	}
	return results, nil
}

// GetFreshData returns the task changes when the remote task moved past
// task.IssueLastUpdated, or nil when nothing changed.
func (p *Provider) GetFreshData(ctx context.Context, task core.LocalTask, cfg core.ProviderConfig) (*core.FreshData, error) {
	if strings.TrimSpace(task.ProviderLinkID) == "" {
		return nil, unlinkedTaskError("provider link id")
	}
	if strings.TrimSpace(task.RemoteID) == "" {
		return nil, unlinkedTaskError("issue id")
	}
	issue, err := p.client.GetTask(ctx, task.RemoteID, cfg)
	if err != nil {
		return nil, err
	}
	updated, _ := ParseTimestamp(issue.UpdatedAt)
	if updated <= task.IssueLastUpdated {
		return nil, nil
	}
	changes := p.AddTaskData(issue)
	changes.IssueWasUpdated = true
	return &core.FreshData{
		TaskChanges: changes,
		Issue:       issue,
		IssueTitle:  issue.Summary,
	}, nil
}

// GetFreshDataForTasks checks each task in turn. A task whose check fails is
// logged and left out.
func (p *Provider) GetFreshDataForTasks(
	ctx context.Context,
	tasks []core.LocalTask,
	cfg core.ProviderConfig,
) ([]core.FreshTaskData, error) {
	out := make([]core.FreshTaskData, 0, len(tasks))
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		fresh, err := p.GetFreshData(ctx, task, cfg)
		if err != nil {
			p.observer.Log(ctx, "error", "feishu: fresh data fetch failed", map[string]any{
				"provider_id": ProviderID,
				"task_key":    task.Key(),
				"error":       err.Error(),
			})
			continue
		}
		if fresh == nil {
			continue
		}
		out = append(out, core.FreshTaskData{Task: task, TaskChanges: fresh.TaskChanges, Issue: fresh.Issue})
	}
	return out, nil
}

func (p *Provider) AddTaskData(issue core.Issue) core.TaskData {
	return AddTaskData(issue, p.location)
}

// GetNewItems lists the first page of tasks and keeps the ones not yet
// linked. Failures are logged and yield no items.
func (p *Provider) GetNewItems(ctx context.Context, existingIDs []string, cfg core.ProviderConfig) ([]core.IssueReduced, error) {
	if !cfg.AutoAddToBacklog {
		return []core.IssueReduced{}, nil
	}
	page, err := p.client.ListTasks(ctx, cfg, "", core.DefaultBacklogPageSize)
	if err != nil {
		p.observer.Log(ctx, "error", "feishu: backlog fetch failed", map[string]any{
			"provider_id": ProviderID,
			"app_id":      cfg.AppID,
			"error":       err.Error(),
		})
		return []core.IssueReduced{}, nil
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[strings.TrimSpace(id)] = struct{}{}
	}
	items := make([]core.IssueReduced, 0, len(page.Items))
	for _, issue := range page.Items {
		if _, ok := existing[issue.GUID]; ok {
			continue
		}
		items = append(items, issue.Reduced())
	}
	return items, nil
}

// UpdateFromTask pushes task to the remote side now, ignoring the cooldown.
// Step failures are returned joined.
func (p *Provider) UpdateFromTask(ctx context.Context, task core.LocalTask, cfg core.ProviderConfig) error {
	result, err := p.reconciler.Reconcile(ctx, task, cfg, feishusync.ReconcileOptions{Force: true})
	if err != nil {
		return err
	}
	return result.Err()
}

// Reconciler exposes the reconciler backing UpdateFromTask.
func (p *Provider) Reconciler() *feishusync.Reconciler {
	return p.reconciler
}

func (p *Provider) Client() *Client {
	return p.client
}

func unlinkedTaskError(field string) error {
	return goerrors.New("feishu: task is missing its "+field, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}

var (
	_ core.IssueProvider  = (*Provider)(nil)
	_ feishusync.TaskAPI = (*Client)(nil)
)

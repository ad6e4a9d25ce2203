package feishu

import (
	"fmt"

	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-feishu/adapters/gocommand"
	feishucommand "github.com/goliatone/go-feishu/command"
	feishuquery "github.com/goliatone/go-feishu/query"
)

type CommandQueryService interface {
	feishucommand.MutatingService
	feishuquery.IssueReader
}

type Commands struct {
	ReconcileTask        *feishucommand.ReconcileTaskCommand
	ReconcileTasks       *feishucommand.ReconcileTasksCommand
	ClearSyncCache       *feishucommand.ClearSyncCacheCommand
	InvalidateCredential *feishucommand.InvalidateCredentialCommand
	UpdateFromTask       *feishucommand.UpdateFromTaskCommand
}

type Queries struct {
	GetIssue       *feishuquery.GetIssueQuery
	SearchIssues   *feishuquery.SearchIssuesQuery
	FreshData      *feishuquery.FreshDataQuery
	NewItems       *feishuquery.NewItemsQuery
	TestConnection *feishuquery.TestConnectionQuery
	RecentSyncRuns *feishuquery.RecentSyncRunsQuery
}

type Facade struct {
	service  CommandQueryService
	runs     feishuquery.SyncRunReader
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	runReader feishuquery.SyncRunReader
}

func WithSyncRunReader(reader feishuquery.SyncRunReader) FacadeOption {
	return func(options *facadeOptions) {
		options.runReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("feishu: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.runReader
	if reader == nil {
		if candidate, ok := service.(feishuquery.SyncRunReader); ok {
			reader = candidate
		}
	}

	facade := &Facade{service: service, runs: reader}
	facade.commands = Commands{
		ReconcileTask:        feishucommand.NewReconcileTaskCommand(service),
		ReconcileTasks:       feishucommand.NewReconcileTasksCommand(service),
		ClearSyncCache:       feishucommand.NewClearSyncCacheCommand(service),
		InvalidateCredential: feishucommand.NewInvalidateCredentialCommand(service),
		UpdateFromTask:       feishucommand.NewUpdateFromTaskCommand(service),
	}
	facade.queries = Queries{
		GetIssue:       feishuquery.NewGetIssueQuery(service),
		SearchIssues:   feishuquery.NewSearchIssuesQuery(service),
		FreshData:      feishuquery.NewFreshDataQuery(service),
		NewItems:       feishuquery.NewNewItemsQuery(service),
		TestConnection: feishuquery.NewTestConnectionQuery(service),
	}
	if reader != nil {
		facade.queries.RecentSyncRuns = feishuquery.NewRecentSyncRunsQuery(reader)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Subscribe registers every command and query with adapter's registry and
// the go-command dispatcher.
func (f *Facade) Subscribe(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("feishu: facade is nil")
	}
	return gocommand.RegisterFeishuHandlers(adapter, f.service, f.service, f.runs, runnerOpts...)
}

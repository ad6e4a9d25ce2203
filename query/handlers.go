package query

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
)

// IssueReader is the read side of the feishu service.
type IssueReader interface {
	GetIssue(ctx context.Context, guid string) (core.Issue, error)
	SearchIssues(ctx context.Context, term string) ([]core.SearchResult, error)
	FreshData(ctx context.Context, task core.LocalTask) (*core.FreshData, error)
	NewItems(ctx context.Context, existingIDs []string) ([]core.IssueReduced, error)
	TestConnection(ctx context.Context) bool
}

type SyncRunReader interface {
	RecentSyncRuns(ctx context.Context, limit int) ([]feishusync.RunSummary, error)
}

type ConnectionStatus struct {
	ProviderID string `json:"provider_id"`
	Connected  bool   `json:"connected"`
}

type GetIssueQuery struct {
	reader IssueReader
}

func NewGetIssueQuery(reader IssueReader) *GetIssueQuery {
	return &GetIssueQuery{reader: reader}
}

func (q *GetIssueQuery) Query(ctx context.Context, msg GetIssueMessage) (core.Issue, error) {
	if q == nil || q.reader == nil {
		return core.Issue{}, missingReader("issue")
	}
	return q.reader.GetIssue(ctx, msg.GUID)
}

type SearchIssuesQuery struct {
	reader IssueReader
}

func NewSearchIssuesQuery(reader IssueReader) *SearchIssuesQuery {
	return &SearchIssuesQuery{reader: reader}
}

func (q *SearchIssuesQuery) Query(ctx context.Context, msg SearchIssuesMessage) ([]core.SearchResult, error) {
	if q == nil || q.reader == nil {
		return nil, missingReader("issue")
	}
	return q.reader.SearchIssues(ctx, msg.Term)
}

type FreshDataQuery struct {
	reader IssueReader
}

func NewFreshDataQuery(reader IssueReader) *FreshDataQuery {
	return &FreshDataQuery{reader: reader}
}

// Query returns nil when the remote issue has not changed since the task's
// last known update.
func (q *FreshDataQuery) Query(ctx context.Context, msg FreshDataMessage) (*core.FreshData, error) {
	if q == nil || q.reader == nil {
		return nil, missingReader("issue")
	}
	return q.reader.FreshData(ctx, msg.Task)
}

type NewItemsQuery struct {
	reader IssueReader
}

func NewNewItemsQuery(reader IssueReader) *NewItemsQuery {
	return &NewItemsQuery{reader: reader}
}

func (q *NewItemsQuery) Query(ctx context.Context, msg NewItemsMessage) ([]core.IssueReduced, error) {
	if q == nil || q.reader == nil {
		return nil, missingReader("issue")
	}
	return q.reader.NewItems(ctx, msg.ExistingIDs)
}

type TestConnectionQuery struct {
	reader IssueReader
}

func NewTestConnectionQuery(reader IssueReader) *TestConnectionQuery {
	return &TestConnectionQuery{reader: reader}
}

func (q *TestConnectionQuery) Query(ctx context.Context, _ TestConnectionMessage) (ConnectionStatus, error) {
	if q == nil || q.reader == nil {
		return ConnectionStatus{}, missingReader("issue")
	}
	return ConnectionStatus{
		ProviderID: core.DefaultServiceName,
		Connected:  q.reader.TestConnection(ctx),
	}, nil
}

type RecentSyncRunsQuery struct {
	reader SyncRunReader
}

func NewRecentSyncRunsQuery(reader SyncRunReader) *RecentSyncRunsQuery {
	return &RecentSyncRunsQuery{reader: reader}
}

func (q *RecentSyncRunsQuery) Query(ctx context.Context, msg RecentSyncRunsMessage) ([]feishusync.RunSummary, error) {
	if q == nil || q.reader == nil {
		return nil, missingReader("sync run")
	}
	return q.reader.RecentSyncRuns(ctx, msg.Limit)
}

func missingReader(name string) error {
	return core.ServiceError(goerrors.CategoryInternal, "query: "+name+" reader is required", nil, nil)
}

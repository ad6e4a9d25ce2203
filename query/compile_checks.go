package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
)

var (
	_ gocmd.Querier[GetIssueMessage, core.Issue]                    = (*GetIssueQuery)(nil)
	_ gocmd.Querier[SearchIssuesMessage, []core.SearchResult]       = (*SearchIssuesQuery)(nil)
	_ gocmd.Querier[FreshDataMessage, *core.FreshData]              = (*FreshDataQuery)(nil)
	_ gocmd.Querier[NewItemsMessage, []core.IssueReduced]           = (*NewItemsQuery)(nil)
	_ gocmd.Querier[TestConnectionMessage, ConnectionStatus]        = (*TestConnectionQuery)(nil)
	_ gocmd.Querier[RecentSyncRunsMessage, []feishusync.RunSummary] = (*RecentSyncRunsQuery)(nil)
)

package query

import (
	"strings"

	"github.com/goliatone/go-feishu/core"
)

const (
	TypeGetIssue       = "feishu.query.issue.get"
	TypeSearchIssues   = "feishu.query.issue.search"
	TypeFreshData      = "feishu.query.issue.fresh_data"
	TypeNewItems       = "feishu.query.issue.new_items"
	TypeTestConnection = "feishu.query.connection.test"
	TypeRecentSyncRuns = "feishu.query.sync_runs.recent"

	maxRecentSyncRuns = 500
)

type GetIssueMessage struct {
	GUID string
}

func (GetIssueMessage) Type() string { return TypeGetIssue }

func (m GetIssueMessage) Validate() error {
	if strings.TrimSpace(m.GUID) == "" {
		return core.InvalidField("query", "guid", "issue guid is required")
	}
	return nil
}

// SearchIssuesMessage accepts an empty term; the search then returns no
// results without calling the API.
type SearchIssuesMessage struct {
	Term string
}

func (SearchIssuesMessage) Type() string { return TypeSearchIssues }

func (SearchIssuesMessage) Validate() error { return nil }

type FreshDataMessage struct {
	Task core.LocalTask
}

func (FreshDataMessage) Type() string { return TypeFreshData }

func (m FreshDataMessage) Validate() error {
	if strings.TrimSpace(m.Task.ProviderLinkID) == "" {
		return core.InvalidField("query", "task.provider_link_id", "provider link id is required")
	}
	if strings.TrimSpace(m.Task.RemoteID) == "" {
		return core.InvalidField("query", "task.remote_id", "remote id is required")
	}
	return nil
}

type NewItemsMessage struct {
	ExistingIDs []string
}

func (NewItemsMessage) Type() string { return TypeNewItems }

func (NewItemsMessage) Validate() error { return nil }

type TestConnectionMessage struct{}

func (TestConnectionMessage) Type() string { return TypeTestConnection }

func (TestConnectionMessage) Validate() error { return nil }

type RecentSyncRunsMessage struct {
	Limit int
}

func (RecentSyncRunsMessage) Type() string { return TypeRecentSyncRuns }

func (m RecentSyncRunsMessage) Validate() error {
	if m.Limit < 0 {
		return core.InvalidField("query", "limit", "limit must be >= 0")
	}
	if m.Limit > maxRecentSyncRuns {
		return core.InvalidField("query", "limit", "limit is too large")
	}
	return nil
}

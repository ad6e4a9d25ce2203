package gocommand

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	feishucommand "github.com/goliatone/go-feishu/command"
	"github.com/goliatone/go-feishu/core"
	feishuquery "github.com/goliatone/go-feishu/query"
	feishusync "github.com/goliatone/go-feishu/sync"
)

func TestRegisterFeishuHandlers_DispatchesCommandsAndQueries(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	service := &stubFeishuService{}

	subs, err := RegisterFeishuHandlers(adapter, service, service, service)
	if err != nil {
		t.Fatalf("register feishu handlers: %v", err)
	}
	t.Cleanup(subs.Unsubscribe)
	if len(subs) != 11 {
		t.Fatalf("expected 11 subscriptions, got %d", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	task := core.LocalTask{ProviderLinkID: "p-1", RemoteID: "g-1"}
	if err := Dispatch(context.Background(), feishucommand.ReconcileTaskMessage{Task: task, Force: true}); err != nil {
		t.Fatalf("dispatch reconcile: %v", err)
	}
	if service.reconciled != task.Key() || !service.forced {
		t.Fatalf("expected forced reconcile of %q, got %q force=%v", task.Key(), service.reconciled, service.forced)
	}

	status, err := Query[feishuquery.TestConnectionMessage, feishuquery.ConnectionStatus](
		context.Background(),
		feishuquery.TestConnectionMessage{},
	)
	if err != nil {
		t.Fatalf("query connection: %v", err)
	}
	if !status.Connected || status.ProviderID != core.DefaultServiceName {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRegisterFeishuHandlers_RequiresDependencies(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	if _, err := RegisterFeishuHandlers(adapter, nil, &stubFeishuService{}, nil); err == nil {
		t.Fatalf("expected missing service error")
	}
	if _, err := RegisterFeishuHandlers(adapter, &stubFeishuService{}, nil, nil); err == nil {
		t.Fatalf("expected missing issue reader error")
	}
	if _, err := RegisterFeishuHandlers(nil, &stubFeishuService{}, &stubFeishuService{}, nil); err == nil {
		t.Fatalf("expected missing registry error")
	}
}

type stubFeishuService struct {
	reconciled string
	forced     bool
}

func (s *stubFeishuService) ReconcileTask(
	_ context.Context,
	task core.LocalTask,
	opts feishusync.ReconcileOptions,
) (feishusync.ReconcileResult, error) {
	s.reconciled = task.Key()
	s.forced = opts.Force
	return feishusync.ReconcileResult{TaskKey: task.Key(), Outcome: feishusync.OutcomeSynced}, nil
}

func (s *stubFeishuService) ReconcileTasks(_ context.Context, tasks []core.LocalTask) (feishusync.RunSummary, error) {
	return feishusync.RunSummary{Total: len(tasks), Succeeded: len(tasks)}, nil
}

func (s *stubFeishuService) ClearSyncCache(context.Context) error { return nil }

func (s *stubFeishuService) InvalidateCredential(context.Context, string) error { return nil }

func (s *stubFeishuService) UpdateFromTask(context.Context, core.LocalTask) error { return nil }

func (s *stubFeishuService) GetIssue(_ context.Context, guid string) (core.Issue, error) {
	return core.Issue{ID: guid, GUID: guid}, nil
}

func (s *stubFeishuService) SearchIssues(context.Context, string) ([]core.SearchResult, error) {
	return nil, nil
}

func (s *stubFeishuService) FreshData(context.Context, core.LocalTask) (*core.FreshData, error) {
	return nil, nil
}

func (s *stubFeishuService) NewItems(context.Context, []string) ([]core.IssueReduced, error) {
	return nil, nil
}

func (s *stubFeishuService) TestConnection(context.Context) bool { return true }

func (s *stubFeishuService) RecentSyncRuns(context.Context, int) ([]feishusync.RunSummary, error) {
	return nil, nil
}

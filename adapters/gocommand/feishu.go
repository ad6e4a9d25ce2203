package gocommand

import (
	"errors"
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	feishucommand "github.com/goliatone/go-feishu/command"
	feishuquery "github.com/goliatone/go-feishu/query"
)

// Subscriptions groups dispatcher subscriptions so they can be torn down
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterFeishuHandlers registers and subscribes every feishu command and
// query. A nil runs reader leaves the sync run query unregistered.
func RegisterFeishuHandlers(
	adapter *RegistryAdapter,
	service feishucommand.MutatingService,
	issues feishuquery.IssueReader,
	runs feishuquery.SyncRunReader,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: mutating service is required")
	}
	if issues == nil {
		return nil, fmt.Errorf("gocommand: issue reader is required")
	}

	var subs Subscriptions
	var errs []error
	track := func(sub commanddispatcher.Subscription, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		subs = append(subs, sub)
	}

	track(RegisterAndSubscribe(adapter, feishucommand.NewReconcileTaskCommand(service), runnerOpts...))
	track(RegisterAndSubscribe(adapter, feishucommand.NewReconcileTasksCommand(service), runnerOpts...))
	track(RegisterAndSubscribe(adapter, feishucommand.NewClearSyncCacheCommand(service), runnerOpts...))
	track(RegisterAndSubscribe(adapter, feishucommand.NewInvalidateCredentialCommand(service), runnerOpts...))
	track(RegisterAndSubscribe(adapter, feishucommand.NewUpdateFromTaskCommand(service), runnerOpts...))

	track(RegisterAndSubscribeQuery(adapter, feishuquery.NewGetIssueQuery(issues), runnerOpts...))
	track(RegisterAndSubscribeQuery(adapter, feishuquery.NewSearchIssuesQuery(issues), runnerOpts...))
	track(RegisterAndSubscribeQuery(adapter, feishuquery.NewFreshDataQuery(issues), runnerOpts...))
	track(RegisterAndSubscribeQuery(adapter, feishuquery.NewNewItemsQuery(issues), runnerOpts...))
	track(RegisterAndSubscribeQuery(adapter, feishuquery.NewTestConnectionQuery(issues), runnerOpts...))
	if runs != nil {
		track(RegisterAndSubscribeQuery(adapter, feishuquery.NewRecentSyncRunsQuery(runs), runnerOpts...))
	}

	if len(errs) > 0 {
		subs.Unsubscribe()
		return nil, errors.Join(errs...)
	}
	return subs, nil
}

package adapters_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-feishu/adapters/gocommand"
	"github.com/goliatone/go-feishu/adapters/gojob"
	"github.com/goliatone/go-feishu/adapters/gologger"
	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
)

func TestRuntimeCompatibility_ReconcileJobsThroughMemoryQueue(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	logger := gologger.Component(nil, glog.Nop(), "worker")
	memory := gojob.NewMemoryQueue(now)
	policy := gojob.RetryPolicy{MaxAttempts: 2, MaxDelay: time.Minute, DeadLetterOnMax: true}
	enqueuer := gojob.NewEnqueuerAdapter(memory)

	task := core.LocalTask{ProviderLinkID: "p-1", RemoteID: "g-1", Title: "Ship", IssueLastUpdated: 10}
	msg, err := gojob.NewReconcileMessage(task, false)
	if err != nil {
		t.Fatalf("new reconcile message: %v", err)
	}
	if err := enqueuer.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := enqueuer.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if memory.Len() != 1 {
		t.Fatalf("expected duplicate revision to be dropped, got %d queued", memory.Len())
	}

	reconciler := &flakyReconciler{failures: 1}
	worker, err := gojob.NewReconcileWorker(gojob.ReconcileWorkerConfig{
		Dequeuer:       gojob.NewDequeuerAdapter(memory),
		Reconciler:     reconciler,
		ProviderConfig: core.DefaultProviderConfig,
		Policy:         policy,
		RetryDelay:     time.Second,
		Logger:         logger,
		Now:            now,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if processed, err := worker.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("first attempt: processed=%v err=%v", processed, err)
	}
	if processed, _ := worker.ProcessNext(ctx); processed {
		t.Fatalf("expected retry to stay delayed")
	}

	clock = clock.Add(2 * time.Second)
	if processed, err := worker.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("second attempt: processed=%v err=%v", processed, err)
	}
	if reconciler.calls != 2 {
		t.Fatalf("expected two reconcile calls, got %d", reconciler.calls)
	}
	if memory.Len() != 0 || len(memory.DeadLetters()) != 0 {
		t.Fatalf("expected drained queue, got len=%d dead=%d", memory.Len(), len(memory.DeadLetters()))
	}

	// The revision was acked, so it can be queued again.
	if err := enqueuer.Enqueue(ctx, msg); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if memory.Len() != 1 {
		t.Fatalf("expected released key to accept the revision again")
	}
}

func TestRuntimeCompatibility_CommandsMirrorIntoQueueRegistry(t *testing.T) {
	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("feishu.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "feishu.compat.command" }

type flakyReconciler struct {
	failures int
	calls    int
}

func (r *flakyReconciler) Reconcile(
	_ context.Context,
	task core.LocalTask,
	_ core.ProviderConfig,
	_ feishusync.ReconcileOptions,
) (feishusync.ReconcileResult, error) {
	r.calls++
	result := feishusync.ReconcileResult{TaskKey: task.Key(), Outcome: feishusync.OutcomeSynced}
	if r.calls <= r.failures {
		result.Steps = []feishusync.StepResult{{Step: "content", Err: errors.New("feishu unavailable")}}
	}
	return result, nil
}

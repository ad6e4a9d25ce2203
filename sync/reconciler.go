// Package sync pushes local task state to remote tasks.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-feishu/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const OperationReconcile = "reconcile"

const (
	StepStatus  = "status"
	StepContent = "content"
	StepComment = "comment"
)

var errTaskKeyRequired = errors.New("sync: task key is required")

// TaskAPI is the slice of the remote task API reconciliation needs.
type TaskAPI interface {
	GetTask(ctx context.Context, guid string, cfg core.ProviderConfig) (core.Issue, error)
	UpdateTask(ctx context.Context, guid string, patch core.TaskPatch, cfg core.ProviderConfig) (core.Issue, error)
	CompleteTask(ctx context.Context, guid string, cfg core.ProviderConfig) (core.Issue, error)
	UncompleteTask(ctx context.Context, guid string, cfg core.ProviderConfig) (core.Issue, error)
	CreateComment(ctx context.Context, guid string, content string, cfg core.ProviderConfig) (core.Comment, error)
}

type Outcome string

const (
	OutcomeSynced           Outcome = "synced"
	OutcomeSkippedUnlinked  Outcome = "skipped_unlinked"
	OutcomeSkippedDisabled  Outcome = "skipped_disabled"
	OutcomeSkippedCooldown  Outcome = "skipped_cooldown"
	OutcomeSkippedUnchanged Outcome = "skipped_unchanged"
)

func (o Outcome) Skipped() bool {
	return strings.HasPrefix(string(o), "skipped_")
}

// ReconcileOptions tune a single reconcile. Force ignores the cooldown.
type ReconcileOptions struct {
	Force bool
}

type StepResult struct {
	Step    string `json:"step"`
	Changed bool   `json:"changed"`
	Err     error  `json:"-"`
}

// MarshalJSON renders Err as its message.
func (s StepResult) MarshalJSON() ([]byte, error) {
	type view struct {
		Step    string `json:"step"`
		Changed bool   `json:"changed"`
		Error   string `json:"error,omitempty"`
	}
	out := view{Step: s.Step, Changed: s.Changed}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}

type ReconcileResult struct {
	TaskKey string       `json:"task_key"`
	Outcome Outcome      `json:"outcome"`
	Steps   []StepResult `json:"steps,omitempty"`
}

// Err joins the step failures.
func (r ReconcileResult) Err() error {
	var errs []error
	for _, step := range r.Steps {
		if step.Err != nil {
			errs = append(errs, step.Err)
		}
	}
	return errors.Join(errs...)
}

type ReconcilerConfig struct {
	API         TaskAPI
	Bookkeeping BookkeepingStore
	Runs        RunStore
	Logger      core.Logger
	Metrics     core.MetricsRecorder
	Cooldown    time.Duration
	Concurrency int
	ProviderID  string
	Now         func() time.Time
}

// Reconciler converges remote tasks toward local task state. Reconciles of
// the same task key never overlap.
type Reconciler struct {
	api         TaskAPI
	bookkeeping BookkeepingStore
	runs        RunStore
	observer    core.Observer
	cooldown    time.Duration
	concurrency int
	providerID  string
	now         func() time.Time
	locks       keyedMutex
}

func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("sync: task api is required")
	}
	bookkeeping := cfg.Bookkeeping
	if bookkeeping == nil {
		bookkeeping = NewMemoryBookkeepingStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = core.DefaultSyncCooldown
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = core.DefaultSyncConcurrency
	}
	providerID := strings.TrimSpace(cfg.ProviderID)
	if providerID == "" {
		providerID = core.DefaultServiceName
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		api:         cfg.API,
		bookkeeping: bookkeeping,
		runs:        cfg.Runs,
		observer:    core.Observer{Logger: logger, Metrics: cfg.Metrics, Now: now},
		cooldown:    cooldown,
		concurrency: concurrency,
		providerID:  providerID,
		now:         now,
	}, nil
}

// Reconcile runs the status, content and comment steps for task. Step
// failures are logged and reported on the result; the returned error is
// reserved for cancellation and bookkeeping failures.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	task core.LocalTask,
	cfg core.ProviderConfig,
	opts ReconcileOptions,
) (result ReconcileResult, err error) {
	if r == nil {
		return ReconcileResult{}, fmt.Errorf("sync: reconciler is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key := task.Key()
	result.TaskKey = key
	fields := map[string]any{
		"provider_id": r.providerID,
		"app_id":      cfg.AppID,
		"task_key":    key,
		"task_guid":   task.RemoteID,
	}

	if !task.IsLinked() {
		r.observer.Log(ctx, "warn", "sync: task has no remote link, skipping", fields)
		result.Outcome = OutcomeSkippedUnlinked
		return result, nil
	}
	if !cfg.TwoWaySync {
		result.Outcome = OutcomeSkippedDisabled
		return result, nil
	}

	unlock := r.locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if !opts.Force {
		outcome, skip, err := r.shouldSkip(ctx, key, task)
		if err != nil {
			return result, err
		}
		if skip {
			result.Outcome = outcome
			return result, nil
		}
	}

	startedAt := r.now()
	defer func() {
		observed := err
		if observed == nil {
			observed = result.Err()
		}
		r.observer.Observe(ctx, startedAt, OperationReconcile, observed, fields)
	}()

	run := &taskRun{reconciler: r, task: task, cfg: cfg}
	steps := []struct {
		name    string
		enabled bool
		fn      func(context.Context) (bool, error)
	}{
		{StepStatus, cfg.SyncTaskStatus, run.syncStatus},
		{StepContent, cfg.SyncTaskContent, run.syncContent},
		{StepComment, cfg.SyncComments, run.syncComment},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		changed, stepErr := step.fn(ctx)
		result.Steps = append(result.Steps, StepResult{Step: step.name, Changed: changed, Err: stepErr})
		if stepErr != nil {
			stepFields := mergeAnyMap(fields, map[string]any{"step": step.name, "error": stepErr.Error()})
			r.observer.Log(ctx, "error", "sync: "+step.name+" step failed", stepFields)
		}
	}

	if err := r.bookkeeping.Put(ctx, SyncMark{TaskKey: key, LastSyncedAt: r.now()}); err != nil {
		return result, fmt.Errorf("sync: record sync mark: %w", err)
	}
	result.Outcome = OutcomeSynced
	r.observer.Log(ctx, "info", "sync: task synced", fields)
	return result, nil
}

// ReconcileMany reconciles the remote linked tasks concurrently. One task's
// failure never stops the others.
func (r *Reconciler) ReconcileMany(
	ctx context.Context,
	tasks []core.LocalTask,
	cfg core.ProviderConfig,
) (RunSummary, error) {
	if r == nil {
		return RunSummary{}, fmt.Errorf("sync: reconciler is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	summary := RunSummary{
		ID:         uuid.NewString(),
		ProviderID: r.providerID,
		StartedAt:  r.now(),
		Total:      len(tasks),
	}

	var succeeded, failed, skipped atomic.Int64
	var group errgroup.Group
	group.SetLimit(r.concurrency)
	for _, task := range tasks {
		if !eligible(task) {
			skipped.Add(1)
			continue
		}
		group.Go(func() error {
			result, err := r.Reconcile(ctx, task, cfg, ReconcileOptions{})
			switch {
			case err != nil || result.Err() != nil:
				failed.Add(1)
			case result.Outcome.Skipped():
				skipped.Add(1)
			default:
				succeeded.Add(1)
			}
			return nil
		})
	}
	_ = group.Wait()

	summary.Succeeded = int(succeeded.Load())
	summary.Failed = int(failed.Load())
	summary.Skipped = int(skipped.Load())
	summary.FinishedAt = r.now()

	fields := map[string]any{
		"provider_id": r.providerID,
		"app_id":      cfg.AppID,
		"run_id":      summary.ID,
		"total":       summary.Total,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
	}
	r.observer.Log(ctx, "info", "sync: batch complete", fields)

	if r.runs != nil {
		if err := r.runs.Record(ctx, summary); err != nil {
			r.observer.Log(ctx, "warn", "sync: run record failed", mergeAnyMap(fields, map[string]any{"error": err.Error()}))
		}
	}
	return summary, ctx.Err()
}

// ClearSyncCache forgets every sync mark.
func (r *Reconciler) ClearSyncCache(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.bookkeeping.Clear(ctx); err != nil {
		return err
	}
	r.observer.Log(ctx, "info", "sync: cleared sync cache", map[string]any{"provider_id": r.providerID})
	return nil
}

// SyncedKeys lists the task keys reconciled since the last clear.
func (r *Reconciler) SyncedKeys(ctx context.Context) ([]string, error) {
	if r == nil {
		return nil, nil
	}
	marks, err := r.bookkeeping.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(marks))
	for _, mark := range marks {
		keys = append(keys, mark.TaskKey)
	}
	return keys, nil
}

func (r *Reconciler) shouldSkip(ctx context.Context, key string, task core.LocalTask) (Outcome, bool, error) {
	mark, ok, err := r.bookkeeping.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("sync: read sync mark: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	if r.now().Sub(mark.LastSyncedAt) < r.cooldown {
		return OutcomeSkippedCooldown, true, nil
	}
	if task.IssueLastUpdated != 0 && task.IssueLastUpdated == mark.LastSyncedMillis() {
		return OutcomeSkippedUnchanged, true, nil
	}
	return "", false, nil
}

func eligible(task core.LocalTask) bool {
	issueType := strings.TrimSpace(task.IssueType)
	return task.IsLinked() && (issueType == "" || issueType == core.IssueTypeFeishu)
}

// taskRun carries the remote item across steps so it is read once.
type taskRun struct {
	reconciler *Reconciler
	task       core.LocalTask
	cfg        core.ProviderConfig
	remote     *core.Issue
}

func (t *taskRun) current(ctx context.Context) (core.Issue, error) {
	if t.remote != nil {
		return *t.remote, nil
	}
	issue, err := t.reconciler.api.GetTask(ctx, t.task.RemoteID, t.cfg)
	if err != nil {
		return core.Issue{}, err
	}
	t.remote = &issue
	return issue, nil
}

func (t *taskRun) replace(issue core.Issue) {
	t.remote = &issue
}

func (t *taskRun) syncStatus(ctx context.Context) (bool, error) {
	remote, err := t.current(ctx)
	if err != nil {
		return false, err
	}
	if remote.IsCompleted() == t.task.IsDone {
		return false, nil
	}
	api := t.reconciler.api
	var updated core.Issue
	if t.task.IsDone {
		updated, err = api.CompleteTask(ctx, t.task.RemoteID, t.cfg)
	} else {
		updated, err = api.UncompleteTask(ctx, t.task.RemoteID, t.cfg)
	}
	if err != nil {
		return false, err
	}
	t.replace(updated)
	return true, nil
}

func (t *taskRun) syncContent(ctx context.Context) (bool, error) {
	remote, err := t.current(ctx)
	if err != nil {
		return false, err
	}
	patch := core.TaskPatch{}
	if t.task.Title != remote.Summary {
		title := t.task.Title
		patch.Summary = &title
	}
	if t.task.Notes != "" {
		description := core.ExtractDescription(t.task.Notes)
		if description != remote.Description {
			patch.Description = &description
		}
	}
	if patch.IsEmpty() {
		return false, nil
	}
	updated, err := t.reconciler.api.UpdateTask(ctx, t.task.RemoteID, patch, t.cfg)
	if err != nil {
		return false, err
	}
	t.replace(updated)
	return true, nil
}

// syncComment posts the trailing comment text. Nothing records which
// comments were already posted, so a later pass past the cooldown posts the
// same text again.
func (t *taskRun) syncComment(ctx context.Context) (bool, error) {
	comment, ok := core.ExtractComment(t.task.Notes)
	if !ok {
		return false, nil
	}
	if _, err := t.reconciler.api.CreateComment(ctx, t.task.RemoteID, comment, t.cfg); err != nil {
		return false, err
	}
	return true, nil
}

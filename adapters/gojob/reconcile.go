package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
	"github.com/goliatone/go-logger/glog"
)

const (
	jobNamespace   = "feishu."
	JobIDReconcile = jobNamespace + "sync.reconcile"
)

const (
	paramTask  = "task"
	paramForce = "force"

	// DedupPolicyDrop drops a reconcile for a task revision that is already queued.
	DedupPolicyDrop = "drop"

	defaultRetryDelay = 5 * time.Second
)

// NewReconcileMessage builds a reconcile job for task. The idempotency key
// pins the message to the task revision so replays of the same revision
// collapse.
func NewReconcileMessage(task core.LocalTask, force bool) (*core.JobExecutionMessage, error) {
	if !task.IsLinked() {
		return nil, fmt.Errorf("gojob: task %q is not linked to a remote issue", task.Title)
	}
	encoded, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("gojob: encode task: %w", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return nil, fmt.Errorf("gojob: encode task: %w", err)
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDReconcile,
		ScriptPath:     JobIDReconcile,
		Parameters:     map[string]any{paramTask: payload, paramForce: force},
		IdempotencyKey: ReconcileIdempotencyKey(task),
		DedupPolicy:    DedupPolicyDrop,
	}, nil
}

func ReconcileIdempotencyKey(task core.LocalTask) string {
	return fmt.Sprintf("%s:%d", task.Key(), task.IssueLastUpdated)
}

// DecodeReconcileMessage reverses NewReconcileMessage.
func DecodeReconcileMessage(msg *core.JobExecutionMessage) (core.LocalTask, bool, error) {
	if msg == nil {
		return core.LocalTask{}, false, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDReconcile {
		return core.LocalTask{}, false, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, ok := msg.Parameters[paramTask]
	if !ok || raw == nil {
		return core.LocalTask{}, false, fmt.Errorf("gojob: reconcile message has no task")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return core.LocalTask{}, false, fmt.Errorf("gojob: decode task: %w", err)
	}
	var task core.LocalTask
	if err := json.Unmarshal(encoded, &task); err != nil {
		return core.LocalTask{}, false, fmt.Errorf("gojob: decode task: %w", err)
	}
	if !task.IsLinked() {
		return core.LocalTask{}, false, fmt.Errorf("gojob: decoded task is not linked")
	}
	force, _ := msg.Parameters[paramForce].(bool)
	return task, force, nil
}

// Reconciler is the slice of the sync engine a worker drives.
type Reconciler interface {
	Reconcile(
		ctx context.Context,
		task core.LocalTask,
		cfg core.ProviderConfig,
		opts feishusync.ReconcileOptions,
	) (feishusync.ReconcileResult, error)
}

type ReconcileWorkerConfig struct {
	Dequeuer       core.JobDequeuer
	Reconciler     Reconciler
	ProviderConfig func() core.ProviderConfig
	Hook           core.JobWorkerHook
	Policy         RetryPolicy
	RetryDelay     time.Duration
	Logger         core.Logger
	Now            func() time.Time
}

// ReconcileWorker drains reconcile jobs one delivery at a time.
type ReconcileWorker struct {
	dequeuer   core.JobDequeuer
	reconciler Reconciler
	provider   func() core.ProviderConfig
	hook       core.JobWorkerHook
	policy     RetryPolicy
	retryDelay time.Duration
	logger     core.Logger
	now        func() time.Time

	mu       gosync.Mutex
	attempts map[string]int
}

func NewReconcileWorker(cfg ReconcileWorkerConfig) (*ReconcileWorker, error) {
	if cfg.Dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if cfg.Reconciler == nil {
		return nil, fmt.Errorf("gojob: reconciler is required")
	}
	if cfg.ProviderConfig == nil {
		return nil, fmt.Errorf("gojob: provider config source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	hook := cfg.Hook
	if hook == nil {
		hook = LoggingHook{Logger: logger}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &ReconcileWorker{
		dequeuer:   cfg.Dequeuer,
		reconciler: cfg.Reconciler,
		provider:   cfg.ProviderConfig,
		hook:       hook,
		policy:     cfg.Policy,
		retryDelay: retryDelay,
		logger:     logger,
		now:        now,
		attempts:   map[string]int{},
	}, nil
}

// ProcessNext handles one delivery. It reports false when the queue had
// nothing to hand out.
func (w *ReconcileWorker) ProcessNext(ctx context.Context) (bool, error) {
	if w == nil {
		return false, fmt.Errorf("gojob: reconcile worker is nil")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	started := w.now()
	event := core.JobWorkerEvent{Message: msg, StartedAt: started}

	task, force, err := DecodeReconcileMessage(msg)
	if err != nil {
		event.Err = err
		w.hook.OnFailure(ctx, event)
		return true, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}

	key := ReconcileIdempotencyKey(task)
	if msg != nil && strings.TrimSpace(msg.IdempotencyKey) != "" {
		key = strings.TrimSpace(msg.IdempotencyKey)
	}
	attempt := w.nextAttempt(key)
	event.Attempt = attempt
	w.hook.OnStart(ctx, event)

	// A failed attempt still records its sync mark, so redeliveries must
	// bypass the cooldown to rerun the failed step.
	opts := feishusync.ReconcileOptions{Force: force || attempt > 1}
	result, err := w.reconciler.Reconcile(ctx, task, w.provider(), opts)
	if err == nil {
		err = result.Err()
	}
	event.Duration = w.now().Sub(started)

	if err == nil {
		w.resetAttempts(key)
		w.hook.OnSuccess(ctx, event)
		return true, delivery.Ack(ctx)
	}

	event.Err = err
	nack := w.policy.Decide(err, attempt, w.retryDelay)
	if nack.Requeue {
		event.Delay = nack.Delay
		w.hook.OnRetry(ctx, event)
	} else {
		w.resetAttempts(key)
		w.hook.OnFailure(ctx, event)
	}
	return true, delivery.Nack(ctx, nack)
}

// Run processes deliveries until ctx is done, sleeping for idle between
// empty polls.
func (w *ReconcileWorker) Run(ctx context.Context, idle time.Duration) error {
	if idle <= 0 {
		idle = time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Warn("reconcile worker delivery failed", "error", err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idle):
		}
	}
}

func (w *ReconcileWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *ReconcileWorker) resetAttempts(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

// LoggingHook writes worker lifecycle events to a logger.
type LoggingHook struct {
	Logger core.Logger
}

func (h LoggingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Debug("reconcile job started", eventFields(event)...)
}

func (h LoggingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Info("reconcile job finished", eventFields(event)...)
}

func (h LoggingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Error("reconcile job failed", eventFields(event)...)
}

func (h LoggingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Warn("reconcile job scheduled for retry", eventFields(event)...)
}

func (h LoggingHook) log(ctx context.Context) core.Logger {
	if h.Logger == nil {
		return glog.Nop()
	}
	if ctx != nil {
		return h.Logger.WithContext(ctx)
	}
	return h.Logger
}

func eventFields(event core.JobWorkerEvent) []any {
	fields := []any{"attempt", event.Attempt}
	if event.Message != nil {
		fields = append(fields, "job_id", event.Message.JobID, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Duration > 0 {
		fields = append(fields, "duration", event.Duration.String())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var (
	_ core.JobWorkerHook = LoggingHook{}
)

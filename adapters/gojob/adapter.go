package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-feishu/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// RetryPolicy bounds reconcile retries. Delays grow linearly with the
// attempt number and never exceed MaxDelay.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Decide maps a failed reconcile attempt to a nack. Configuration and
// authentication failures dead letter immediately. Rate limited attempts
// wait the full MaxDelay before the next try.
func (p RetryPolicy) Decide(err error, attempt int, base time.Duration) core.JobNackOptions {
	classification := core.Resolve(err)
	opts := core.JobNackOptions{Reason: strings.TrimSpace(classification.Message)}
	switch classification.Kind {
	case core.ErrorKindConfiguration, core.ErrorKindAuthentication:
		opts.DeadLetter = true
		return opts
	}

	opts.Requeue = true
	opts.Delay = time.Duration(max(attempt, 1)) * base
	if classification.Kind == core.ErrorKindRateLimit && p.MaxDelay > opts.Delay {
		opts.Delay = p.MaxDelay
	}
	if p.MaxDelay > 0 && opts.Delay > p.MaxDelay {
		opts.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		opts.Requeue = false
		opts.Delay = 0
		opts.DeadLetter = p.DeadLetterOnMax
	}
	return opts
}

// ToExecutionMessage converts a reconcile job into the go-job wire shape.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func cloneParameters(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}

// EnqueuerAdapter puts reconcile jobs on any go-job queue. Only jobs in
// the feishu namespace are accepted.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	if jobID := strings.TrimSpace(msg.JobID); !strings.HasPrefix(jobID, jobNamespace) {
		return fmt.Errorf("gojob: job %q is outside the %q namespace", jobID, jobNamespace)
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	return &deliveryAdapter{delivery: delivery}, nil
}

type deliveryAdapter struct {
	delivery queue.Delivery
}

func (d *deliveryAdapter) Message() *core.JobExecutionMessage {
	return FromExecutionMessage(d.delivery.Message())
}

func (d *deliveryAdapter) Ack(ctx context.Context) error {
	return d.delivery.Ack(ctx)
}

func (d *deliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      max(opts.Delay, 0),
		Requeue:    opts.Requeue && !opts.DeadLetter,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	})
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ core.JobDelivery = (*deliveryAdapter)(nil)
)

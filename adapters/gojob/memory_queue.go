package gojob

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// MemoryQueue is a process local go-job queue for single node hosts and
// tests. Messages carrying the drop dedup policy are ignored while a
// message with the same idempotency key is pending or in flight.
type MemoryQueue struct {
	mu      gosync.Mutex
	now     func() time.Time
	entries []memoryEntry
	keys    map[string]struct{}
	dead    []*job.ExecutionMessage
}

type memoryEntry struct {
	msg       *job.ExecutionMessage
	visibleAt time.Time
}

func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{now: now, keys: map[string]struct{}{}}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: memory queue is nil")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" {
		if _, exists := q.keys[key]; exists && string(msg.DedupPolicy) == DedupPolicyDrop {
			return nil
		}
		q.keys[key] = struct{}{}
	}
	q.entries = append(q.entries, memoryEntry{msg: msg, visibleAt: q.now()})
	return nil
}

// Dequeue hands out the oldest visible message, or nil when none is ready.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for i, entry := range q.entries {
		if entry.visibleAt.After(now) {
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return &memoryDelivery{queue: q, msg: entry.msg}, nil
	}
	return nil, nil
}

// Len counts pending messages, including delayed ones.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.dead...)
}

func (q *MemoryQueue) release(msg *job.ExecutionMessage) {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		delete(q.keys, key)
	}
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
	done  bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.done {
		return fmt.Errorf("gojob: delivery already settled")
	}
	d.done = true
	d.queue.release(d.msg)
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.done {
		return fmt.Errorf("gojob: delivery already settled")
	}
	d.done = true
	switch {
	case opts.DeadLetter:
		d.queue.release(d.msg)
		d.queue.dead = append(d.queue.dead, d.msg)
	case opts.Requeue:
		d.queue.entries = append(d.queue.entries, memoryEntry{
			msg:       d.msg,
			visibleAt: d.queue.now().Add(opts.Delay),
		})
	default:
		d.queue.release(d.msg)
	}
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)

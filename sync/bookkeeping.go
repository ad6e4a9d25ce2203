package sync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// SyncMark records when a task key was last reconciled.
type SyncMark struct {
	TaskKey      string
	LastSyncedAt time.Time
}

// LastSyncedMillis is the mark time as epoch milliseconds, the unit of
// issue update timestamps.
func (m SyncMark) LastSyncedMillis() int64 {
	if m.LastSyncedAt.IsZero() {
		return 0
	}
	return m.LastSyncedAt.UnixMilli()
}

// BookkeepingStore keeps per task sync marks. A key present in the store is
// a synced task.
type BookkeepingStore interface {
	Get(ctx context.Context, taskKey string) (SyncMark, bool, error)
	Put(ctx context.Context, mark SyncMark) error
	Clear(ctx context.Context) error
	List(ctx context.Context) ([]SyncMark, error)
}

type MemoryBookkeepingStore struct {
	mu    sync.RWMutex
	marks map[string]SyncMark
}

func NewMemoryBookkeepingStore() *MemoryBookkeepingStore {
	return &MemoryBookkeepingStore{marks: map[string]SyncMark{}}
}

func (s *MemoryBookkeepingStore) Get(_ context.Context, taskKey string) (SyncMark, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mark, ok := s.marks[strings.TrimSpace(taskKey)]
	return mark, ok, nil
}

func (s *MemoryBookkeepingStore) Put(_ context.Context, mark SyncMark) error {
	mark.TaskKey = strings.TrimSpace(mark.TaskKey)
	if mark.TaskKey == "" {
		return errTaskKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marks == nil {
		s.marks = map[string]SyncMark{}
	}
	s.marks[mark.TaskKey] = mark
	return nil
}

func (s *MemoryBookkeepingStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = map[string]SyncMark{}
	return nil
}

func (s *MemoryBookkeepingStore) List(context.Context) ([]SyncMark, error) {
	s.mu.RLock()
	marks := make([]SyncMark, 0, len(s.marks))
	for _, mark := range s.marks {
		marks = append(marks, mark)
	}
	s.mu.RUnlock()
	sort.Slice(marks, func(i, j int) bool { return marks[i].TaskKey < marks[j].TaskKey })
	return marks, nil
}

// keyedMutex serializes work per key and drops idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyLock{}
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

var _ BookkeepingStore = (*MemoryBookkeepingStore)(nil)

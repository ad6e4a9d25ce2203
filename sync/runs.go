package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// RunSummary describes one batch reconcile.
type RunSummary struct {
	ID         string         `json:"id"`
	ProviderID string         `json:"provider_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

type RunStore interface {
	Record(ctx context.Context, run RunSummary) error
	Recent(ctx context.Context, limit int) ([]RunSummary, error)
}

type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []RunSummary
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{}
}

func (s *MemoryRunStore) Record(_ context.Context, run RunSummary) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("sync: run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run.Metadata = mergeAnyMap(nil, run.Metadata)
	s.runs = append(s.runs, run)
	return nil
}

// Recent returns the newest runs first.
func (s *MemoryRunStore) Recent(_ context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	runs := append([]RunSummary(nil), s.runs...)
	s.mu.RUnlock()
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func mergeAnyMap(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}

var _ RunStore = (*MemoryRunStore)(nil)

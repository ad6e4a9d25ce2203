package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultRecentRuns = 20

type SyncRunStore struct {
	db   *bun.DB
	repo repository.Repository[*syncRunRecord]
}

func NewSyncRunStore(db *bun.DB) (*SyncRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncRunRecord](db, syncRunHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync run repository wiring: %w", err)
		}
	}
	return &SyncRunStore{db: db, repo: repo}, nil
}

// Record stores a finished batch. Metadata is redacted before it is written.
func (s *SyncRunStore) Record(ctx context.Context, run feishusync.RunSummary) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: sync run store is not configured")
	}
	id := strings.TrimSpace(run.ID)
	if id == "" {
		id = uuid.NewString()
	}
	record := &syncRunRecord{
		ID:         id,
		ProviderID: strings.TrimSpace(run.ProviderID),
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Total:      run.Total,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		Skipped:    run.Skipped,
		Metadata:   core.RedactSensitiveMap(run.Metadata),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// Recent returns the latest runs, newest first.
func (s *SyncRunStore) Recent(ctx context.Context, limit int) ([]feishusync.RunSummary, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	if limit <= 0 {
		limit = defaultRecentRuns
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("started_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	runs := make([]feishusync.RunSummary, 0, len(records))
	for _, record := range records {
		runs = append(runs, record.toDomain())
	}
	return runs, nil
}

func (r *syncRunRecord) toDomain() feishusync.RunSummary {
	if r == nil {
		return feishusync.RunSummary{}
	}
	return feishusync.RunSummary{
		ID:         r.ID,
		ProviderID: r.ProviderID,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Total:      r.Total,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Metadata:   copyAnyMap(r.Metadata),
	}
}

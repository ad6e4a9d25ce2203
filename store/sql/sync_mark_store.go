package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	feishusync "github.com/goliatone/go-feishu/sync"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SyncMarkStore persists reconcile bookkeeping so cooldowns survive a
// restart.
type SyncMarkStore struct {
	db   *bun.DB
	repo repository.Repository[*syncMarkRecord]
	now  func() time.Time
}

func NewSyncMarkStore(db *bun.DB) (*SyncMarkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncMarkRecord](db, syncMarkHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync mark repository wiring: %w", err)
		}
	}
	return &SyncMarkStore{db: db, repo: repo, now: time.Now}, nil
}

func (s *SyncMarkStore) Get(ctx context.Context, taskKey string) (feishusync.SyncMark, bool, error) {
	if s == nil || s.db == nil {
		return feishusync.SyncMark{}, false, fmt.Errorf("sqlstore: sync mark store is not configured")
	}
	record, err := findSyncMark(ctx, s.db, strings.TrimSpace(taskKey))
	if err != nil {
		return feishusync.SyncMark{}, false, err
	}
	if record == nil {
		return feishusync.SyncMark{}, false, nil
	}
	return record.toDomain(), true, nil
}

func (s *SyncMarkStore) Put(ctx context.Context, mark feishusync.SyncMark) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: sync mark store is not configured")
	}
	key := strings.TrimSpace(mark.TaskKey)
	if key == "" {
		return fmt.Errorf("sqlstore: task key is required")
	}
	now := s.now().UTC()
	syncedAt := mark.LastSyncedAt.UTC()
	if mark.LastSyncedAt.IsZero() {
		syncedAt = now
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSyncMark(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &syncMarkRecord{
				ID:           uuid.NewString(),
				TaskKey:      key,
				LastSyncedAt: syncedAt,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			_, err = tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err = tx.NewUpdate().
			Model((*syncMarkRecord)(nil)).
			Set("last_synced_at = ?", syncedAt).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func (s *SyncMarkStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: sync mark store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*syncMarkRecord)(nil)).
		Where("1 = 1").
		Exec(ctx)
	return err
}

func (s *SyncMarkStore) List(ctx context.Context) ([]feishusync.SyncMark, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: sync mark store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("task_key ASC"))
	if err != nil {
		return nil, err
	}
	marks := make([]feishusync.SyncMark, 0, len(records))
	for _, record := range records {
		marks = append(marks, record.toDomain())
	}
	return marks, nil
}

func (r *syncMarkRecord) toDomain() feishusync.SyncMark {
	if r == nil {
		return feishusync.SyncMark{}
	}
	return feishusync.SyncMark{
		TaskKey:      r.TaskKey,
		LastSyncedAt: r.LastSyncedAt.UTC(),
	}
}

func findSyncMark(ctx context.Context, db bun.IDB, taskKey string) (*syncMarkRecord, error) {
	record := &syncMarkRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.task_key = ?", taskKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-feishu/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TenantCredentialStore keeps one tenant token row per app id. Tokens are
// sealed with the secret provider when one is set.
type TenantCredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*tenantCredentialRecord]
	now     func() time.Time
	secrets core.SecretProvider
}

func NewTenantCredentialStore(db *bun.DB) (*TenantCredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantCredentialRecord](db, tenantCredentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid tenant credential repository wiring: %w", err)
		}
	}
	return &TenantCredentialStore{db: db, repo: repo, now: time.Now}, nil
}

// SealWith encrypts tokens written from now on and decrypts tokens on read.
func (s *TenantCredentialStore) SealWith(secrets core.SecretProvider) {
	if s != nil {
		s.secrets = secrets
	}
}

func (s *TenantCredentialStore) Get(ctx context.Context, appID string) (core.Credential, bool, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, false, fmt.Errorf("sqlstore: tenant credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("app_id", "=", strings.TrimSpace(appID)),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, false, err
	}
	if len(records) == 0 {
		return core.Credential{}, false, nil
	}
	cred := records[0].toDomain()
	token, err := s.openToken(ctx, cred.Token)
	if err != nil {
		return core.Credential{}, false, err
	}
	cred.Token = token
	return cred, true, nil
}

func (s *TenantCredentialStore) Put(ctx context.Context, cred core.Credential) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant credential store is not configured")
	}
	appID := strings.TrimSpace(cred.SubjectKey)
	if appID == "" {
		return fmt.Errorf("sqlstore: credential subject key is required")
	}
	now := s.now().UTC()
	token, err := s.sealToken(ctx, cred.Token)
	if err != nil {
		return err
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &tenantCredentialRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.app_id = ?", appID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if errors.Is(err, sql.ErrNoRows) {
			_, insertErr := tx.NewInsert().Model(&tenantCredentialRecord{
				ID:        uuid.NewString(),
				AppID:     appID,
				Token:     token,
				ExpiresAt: cred.ExpiresAt.UTC(),
				CreatedAt: now,
				UpdatedAt: now,
			}).Exec(ctx)
			return insertErr
		}
		_, err = tx.NewUpdate().
			Model((*tenantCredentialRecord)(nil)).
			Set("token = ?", token).
			Set("expires_at = ?", cred.ExpiresAt.UTC()).
			Set("updated_at = ?", now).
			Where("id = ?", existing.ID).
			Exec(ctx)
		return err
	})
}

func (s *TenantCredentialStore) Delete(ctx context.Context, appID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tenantCredentialRecord)(nil)).
		Where("app_id = ?", strings.TrimSpace(appID)).
		Exec(ctx)
	return err
}

func (s *TenantCredentialStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tenantCredentialRecord)(nil)).
		Where("1 = 1").
		Exec(ctx)
	return err
}

func (s *TenantCredentialStore) sealToken(ctx context.Context, token string) (string, error) {
	if s.secrets == nil || token == "" {
		return token, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(token))
	if err != nil {
		return "", fmt.Errorf("sqlstore: seal tenant token: %w", err)
	}
	return string(sealed), nil
}

func (s *TenantCredentialStore) openToken(ctx context.Context, stored string) (string, error) {
	if s.secrets == nil || stored == "" {
		return stored, nil
	}
	token, err := s.secrets.Decrypt(ctx, []byte(stored))
	if err != nil {
		return "", fmt.Errorf("sqlstore: open tenant token: %w", err)
	}
	return string(token), nil
}

func (r *tenantCredentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		SubjectKey: r.AppID,
		Token:      r.Token,
		ExpiresAt:  r.ExpiresAt.UTC(),
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"proofdrop/internal/platform/database"
	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/sentinel"
)

// Record tables share one shape; the local registry and the cross-chain
// receiver each own one.
const (
	TableRegistry = "verification_records"
	TableReceiver = "receiver_records"
)

// PostgresStore persists records in table and, for the registry, the
// singleton scope row.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgres(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: table}
}

func (s *PostgresStore) Get(ctx context.Context, account domain.Address) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT expires_at, updated_at FROM %s WHERE account = $1`, s.table)
	r := models.Record{Account: account}
	err := database.Conn(ctx, s.db).QueryRowContext(ctx, query, account.Key()).Scan(&r.ExpiresAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification record: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) Put(ctx context.Context, record *models.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (account, expires_at, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, s.table)
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, query, record.Account.Key(), record.ExpiresAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScope(ctx context.Context) (*models.ScopeConfig, error) {
	var (
		scope    models.ScopeConfig
		configID string
	)
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT scope_seed, config_id FROM registry_scope WHERE id = 1`,
	).Scan(&scope.ScopeSeed, &configID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registry scope: %w", err)
	}
	if scope.ConfigID, err = domain.ParseBytes32(configID); err != nil {
		return nil, fmt.Errorf("decode config id: %w", err)
	}
	return &scope, nil
}

func (s *PostgresStore) PutScope(ctx context.Context, scope *models.ScopeConfig) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO registry_scope (id, scope_seed, config_id, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			scope_seed = EXCLUDED.scope_seed,
			config_id = EXCLUDED.config_id,
			updated_at = NOW()
	`, scope.ScopeSeed, scope.ConfigID.Hex())
	if err != nil {
		return fmt.Errorf("upsert registry scope: %w", err)
	}
	return nil
}

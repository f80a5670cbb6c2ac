package trusted

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/sentinel"
)

// Store persists the allow-list and the enforcement flag.
// Error Contract:
// - Enforcement returns sentinel.ErrNotFound until SetEnforcement is called
// - Add and Remove are idempotent
type Store interface {
	Add(ctx context.Context, sender domain.Bytes32) error
	Remove(ctx context.Context, sender domain.Bytes32) error
	Contains(ctx context.Context, sender domain.Bytes32) (bool, error)
	List(ctx context.Context) ([]domain.Bytes32, error)
	Enforcement(ctx context.Context) (bool, error)
	SetEnforcement(ctx context.Context, enforce bool) error
}

type InMemoryStore struct {
	mu      sync.RWMutex
	senders map[domain.Bytes32]struct{}
	enforce *bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{senders: make(map[domain.Bytes32]struct{})}
}

func (s *InMemoryStore) Add(_ context.Context, sender domain.Bytes32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[sender] = struct{}{}
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, sender domain.Bytes32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.senders, sender)
	return nil
}

func (s *InMemoryStore) Contains(_ context.Context, sender domain.Bytes32) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.senders[sender]
	return ok, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]domain.Bytes32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Bytes32, 0, len(s.senders))
	for sender := range s.senders {
		out = append(out, sender)
	}
	slices.SortFunc(out, func(a, b domain.Bytes32) int { return slices.Compare(a[:], b[:]) })
	return out, nil
}

func (s *InMemoryStore) Enforcement(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.enforce == nil {
		return false, sentinel.ErrNotFound
	}
	return *s.enforce, nil
}

func (s *InMemoryStore) SetEnforcement(_ context.Context, enforce bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enforce = &enforce
	return nil
}

const settingEnforce = "trusted_sender_enforcement"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, sender domain.Bytes32) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO trusted_senders (sender) VALUES ($1) ON CONFLICT (sender) DO NOTHING`, sender.Hex())
	if err != nil {
		return fmt.Errorf("add trusted sender: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, sender domain.Bytes32) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM trusted_senders WHERE sender = $1`, sender.Hex())
	if err != nil {
		return fmt.Errorf("remove trusted sender: %w", err)
	}
	return nil
}

func (s *PostgresStore) Contains(ctx context.Context, sender domain.Bytes32) (bool, error) {
	var exists bool
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM trusted_senders WHERE sender = $1)`, sender.Hex()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check trusted sender: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.Bytes32, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `SELECT sender FROM trusted_senders ORDER BY sender`)
	if err != nil {
		return nil, fmt.Errorf("list trusted senders: %w", err)
	}
	defer rows.Close()

	var out []domain.Bytes32
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan trusted sender: %w", err)
		}
		sender, err := domain.ParseBytes32(raw)
		if err != nil {
			return nil, fmt.Errorf("decode trusted sender: %w", err)
		}
		out = append(out, sender)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Enforcement(ctx context.Context) (bool, error) {
	var raw string
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT value FROM relay_settings WHERE key = $1`, settingEnforce).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("read enforcement flag: %w", err)
	}
	return strconv.ParseBool(raw)
}

func (s *PostgresStore) SetEnforcement(ctx context.Context, enforce bool) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO relay_settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, settingEnforce, strconv.FormatBool(enforce))
	if err != nil {
		return fmt.Errorf("write enforcement flag: %w", err)
	}
	return nil
}

package receiver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/sentinel"
)

// DeliveryStore remembers which message ids already had their events emitted.
// Error Contract:
// - MarkDelivered reports first=false for an id seen before, never an error
type DeliveryStore interface {
	MarkDelivered(ctx context.Context, id domain.MessageID, origin domain.Domain, account domain.Address) (first bool, err error)
}

// SettingsStore holds the mailbox address once the owner has set it.
// Error Contract:
// - Mailbox returns sentinel.ErrNotFound until SetMailbox was called
type SettingsStore interface {
	Mailbox(ctx context.Context) (domain.Address, error)
	SetMailbox(ctx context.Context, mailbox domain.Address) error
}

type InMemoryStore struct {
	mu        sync.Mutex
	delivered map[domain.MessageID]struct{}
	mailbox   *domain.Address
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{delivered: make(map[domain.MessageID]struct{})}
}

// MarkDelivered records id once the surrounding unit of work commits.
// Callers serialize deliveries of one account, and so of one id.
func (s *InMemoryStore) MarkDelivered(ctx context.Context, id domain.MessageID, _ domain.Domain, _ domain.Address) (bool, error) {
	s.mu.Lock()
	_, seen := s.delivered[id]
	s.mu.Unlock()
	if seen {
		return false, nil
	}
	database.AfterCommit(ctx, func() {
		s.mu.Lock()
		s.delivered[id] = struct{}{}
		s.mu.Unlock()
	})
	return true, nil
}

func (s *InMemoryStore) Mailbox(_ context.Context) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox == nil {
		return domain.Address{}, sentinel.ErrNotFound
	}
	return *s.mailbox, nil
}

func (s *InMemoryStore) SetMailbox(_ context.Context, mailbox domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailbox = &mailbox
	return nil
}

const settingMailbox = "receiver_mailbox"

// PostgresStore uses receiver_deliveries and the relay_settings key/value table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id domain.MessageID, origin domain.Domain, account domain.Address) (bool, error) {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO receiver_deliveries (message_id, origin_domain, account, received_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (message_id) DO NOTHING
	`, id.Hex(), int64(origin), account.Key())
	if err != nil {
		return false, fmt.Errorf("mark delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark delivery rows: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) Mailbox(ctx context.Context) (domain.Address, error) {
	var raw string
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT value FROM relay_settings WHERE key = $1`, settingMailbox).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Address{}, sentinel.ErrNotFound
		}
		return domain.Address{}, fmt.Errorf("read mailbox: %w", err)
	}
	return domain.ParseAddress(raw)
}

func (s *PostgresStore) SetMailbox(ctx context.Context, mailbox domain.Address) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO relay_settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, settingMailbox, mailbox.Hex())
	if err != nil {
		return fmt.Errorf("write mailbox: %w", err)
	}
	return nil
}

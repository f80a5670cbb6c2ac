package mailbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/domain"
)

// NonceStore hands out the per-origin message counter.
type NonceStore interface {
	// Next reserves and returns the next nonce, starting at 0.
	Next(ctx context.Context, origin domain.Domain) (uint64, error)
	// Count is how many nonces were reserved.
	Count(ctx context.Context, origin domain.Domain) (uint64, error)
}

type InMemoryNonces struct {
	mu     sync.Mutex
	counts map[domain.Domain]uint64
}

func NewInMemoryNonces() *InMemoryNonces {
	return &InMemoryNonces{counts: make(map[domain.Domain]uint64)}
}

func (n *InMemoryNonces) Next(_ context.Context, origin domain.Domain) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.counts[origin]
	n.counts[origin] = next + 1
	return next, nil
}

func (n *InMemoryNonces) Count(_ context.Context, origin domain.Domain) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[origin], nil
}

// PostgresNonces keeps the counter in mailbox_nonce. Next joins the ambient
// transaction, so a rolled-back dispatch also gives its nonce back.
type PostgresNonces struct {
	db *sql.DB
}

func NewPostgresNonces(db *sql.DB) *PostgresNonces {
	return &PostgresNonces{db: db}
}

func (n *PostgresNonces) Next(ctx context.Context, origin domain.Domain) (uint64, error) {
	var count int64
	err := database.Conn(ctx, n.db).QueryRowContext(ctx, `
		INSERT INTO mailbox_nonce (domain, nonce) VALUES ($1, 1)
		ON CONFLICT (domain) DO UPDATE SET nonce = mailbox_nonce.nonce + 1
		RETURNING nonce
	`, int64(origin)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reserve nonce: %w", err)
	}
	return uint64(count - 1), nil
}

func (n *PostgresNonces) Count(ctx context.Context, origin domain.Domain) (uint64, error) {
	var count int64
	err := database.Conn(ctx, n.db).QueryRowContext(ctx,
		`SELECT nonce FROM mailbox_nonce WHERE domain = $1`, int64(origin)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read nonce: %w", err)
	}
	return uint64(count), nil
}

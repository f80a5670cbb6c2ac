package airdrop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore keeps airdrops and claimed leaves in airdrops and
// airdrop_claims. Get locks the row when called inside a transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) Create(ctx context.Context, a *Airdrop) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO airdrops (id, merkle_root, token, total_amount, claimed_amount, creator, cancelled, created_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID.Hex(), a.MerkleRoot.Hex(), a.Token.Key(), a.TotalAmount, a.ClaimedAmount, a.Creator.Key(), a.Cancelled, a.CreatedAt, a.CancelledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert airdrop: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.AirdropID) (*Airdrop, error) {
	query := `
		SELECT id, merkle_root, token, total_amount, claimed_amount, creator, cancelled, created_at, cancelled_at
		FROM airdrops WHERE id = $1`
	if _, ok := database.TxFrom(ctx); ok {
		query += ` FOR UPDATE`
	}

	var (
		rawID, rawRoot, rawToken, rawCreator string
		cancelledAt                          sql.NullTime
		a                                    Airdrop
	)
	err := database.Conn(ctx, s.db).QueryRowContext(ctx, query, id.Hex()).Scan(
		&rawID, &rawRoot, &rawToken, &a.TotalAmount, &a.ClaimedAmount, &rawCreator, &a.Cancelled, &a.CreatedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select airdrop: %w", err)
	}
	if a.ID, err = domain.ParseAirdropID(rawID); err != nil {
		return nil, fmt.Errorf("decode airdrop id: %w", err)
	}
	if a.MerkleRoot, err = domain.ParseBytes32(rawRoot); err != nil {
		return nil, fmt.Errorf("decode merkle root: %w", err)
	}
	if a.Token, err = domain.ParseAddress(rawToken); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if a.Creator, err = domain.ParseAddress(rawCreator); err != nil {
		return nil, fmt.Errorf("decode creator: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		a.CancelledAt = &t
	}
	return &a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *Airdrop) error {
	res, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE airdrops SET claimed_amount = $2, cancelled = $3, cancelled_at = $4 WHERE id = $1
	`, a.ID.Hex(), a.ClaimedAmount, a.Cancelled, a.CancelledAt)
	if err != nil {
		return fmt.Errorf("update airdrop: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update airdrop rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IsClaimed(ctx context.Context, id domain.AirdropID, leaf domain.Hash) (bool, error) {
	var exists bool
	err := database.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM airdrop_claims WHERE airdrop_id = $1 AND leaf = $2)`,
		id.Hex(), leaf.Hex()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check claim: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) RecordClaim(ctx context.Context, c *Claim) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO airdrop_claims (airdrop_id, leaf, claim_index, account, amount, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.AirdropID.Hex(), c.Leaf.Hex(), c.Index, c.Account.Key(), c.Amount, c.ClaimedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) Claims(ctx context.Context, id domain.AirdropID) ([]Claim, error) {
	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT leaf, claim_index, account, amount, claimed_at
		FROM airdrop_claims WHERE airdrop_id = $1 ORDER BY claimed_at, leaf
	`, id.Hex())
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []Claim
	for rows.Next() {
		var (
			rawLeaf, rawAccount string
			c                   = Claim{AirdropID: id}
		)
		if err := rows.Scan(&rawLeaf, &c.Index, &rawAccount, &c.Amount, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		if c.Leaf, err = domain.ParseBytes32(rawLeaf); err != nil {
			return nil, fmt.Errorf("decode leaf: %w", err)
		}
		if c.Account, err = domain.ParseAddress(rawAccount); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		c.ClaimedAt = c.ClaimedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

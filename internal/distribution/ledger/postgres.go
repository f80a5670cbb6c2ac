package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/domain"
)

// Postgres keeps balances in ledger_balances and allowances in
// ledger_allowances. Reads inside a unit of work lock the row they touch.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type pgState struct {
	db *sql.DB
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return database.RunInTx(ctx, p.db, func(ctx context.Context) error {
		return fn(ctx, book{s: pgState{db: p.db}})
	})
}

func (p *Postgres) Balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error) {
	return readAmount(ctx, database.Conn(ctx, p.db),
		`SELECT amount FROM ledger_balances WHERE asset = $1 AND account = $2`,
		asset.Key(), account.Key())
}

func (p *Postgres) Allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error) {
	return readAmount(ctx, database.Conn(ctx, p.db),
		`SELECT amount FROM ledger_allowances WHERE token = $1 AND owner = $2 AND spender = $3`,
		token.Key(), owner.Key(), spender.Key())
}

// balance materialises a zero row first so FOR UPDATE always has a row to
// lock. A concurrent inserter of the same key blocks on the conflict until
// the first transaction ends.
func (s pgState) balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error) {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ledger_balances (asset, account, amount) VALUES ($1, $2, 0)
		ON CONFLICT (asset, account) DO NOTHING
	`, asset.Key(), account.Key())
	if err != nil {
		return domain.Amount{}, fmt.Errorf("lock balance: %w", err)
	}
	return readAmount(ctx, database.Conn(ctx, s.db),
		`SELECT amount FROM ledger_balances WHERE asset = $1 AND account = $2 FOR UPDATE`,
		asset.Key(), account.Key())
}

func (s pgState) setBalance(ctx context.Context, asset, account domain.Address, amount domain.Amount) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ledger_balances (asset, account, amount) VALUES ($1, $2, $3)
		ON CONFLICT (asset, account) DO UPDATE SET amount = EXCLUDED.amount
	`, asset.Key(), account.Key(), amount)
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func (s pgState) allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error) {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ledger_allowances (token, owner, spender, amount) VALUES ($1, $2, $3, 0)
		ON CONFLICT (token, owner, spender) DO NOTHING
	`, token.Key(), owner.Key(), spender.Key())
	if err != nil {
		return domain.Amount{}, fmt.Errorf("lock allowance: %w", err)
	}
	return readAmount(ctx, database.Conn(ctx, s.db),
		`SELECT amount FROM ledger_allowances WHERE token = $1 AND owner = $2 AND spender = $3 FOR UPDATE`,
		token.Key(), owner.Key(), spender.Key())
}

func (s pgState) setAllowance(ctx context.Context, token, owner, spender domain.Address, amount domain.Amount) error {
	_, err := database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ledger_allowances (token, owner, spender, amount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (token, owner, spender) DO UPDATE SET amount = EXCLUDED.amount
	`, token.Key(), owner.Key(), spender.Key(), amount)
	if err != nil {
		return fmt.Errorf("write allowance: %w", err)
	}
	return nil
}

func readAmount(ctx context.Context, exec database.Executor, query string, args ...any) (domain.Amount, error) {
	var amount domain.Amount
	err := exec.QueryRowContext(ctx, query, args...).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Amount{}, nil
		}
		return domain.Amount{}, fmt.Errorf("read ledger amount: %w", err)
	}
	return amount, nil
}

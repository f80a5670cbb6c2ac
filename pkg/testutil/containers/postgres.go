//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"proofdrop/internal/platform/database"
	"proofdrop/migrations"
	id "proofdrop/pkg/domain"
)

// PostgresContainer wraps a testcontainers Postgres instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new Postgres container with migrations applied.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("proofdrop_test"),
		postgres.WithUsername("proofdrop"),
		postgres.WithPassword("proofdrop_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	pc := &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}

	if err := database.Migrate(ctx, db, migrations.FS, slog.New(slog.DiscardHandler)); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Shared through Manager; Ryuk reaps it when the test binary exits.

	return pc
}

// TruncateTables clears all data from the specified tables.
// Use between tests to ensure isolation without restarting the container.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		_, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE")
		if err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// ModuleTables lists every table the migrations create, children first.
var ModuleTables = []string{
	"airdrop_claims",
	"airdrops",
	"ledger_allowances",
	"ledger_balances",
	"events",
	"outbox",
	"mailbox_nonce",
	"relay_settings",
	"trusted_senders",
	"receiver_deliveries",
	"receiver_records",
	"registry_scope",
	"verification_records",
}

// TruncateModuleTables resets every table between tests.
func (p *PostgresContainer) TruncateModuleTables(ctx context.Context) error {
	return p.TruncateTables(ctx, ModuleTables...)
}

// Exec runs a SQL statement and returns the result.
func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.DB.ExecContext(ctx, query, args...)
}

// Query runs a SQL query and returns rows.
func (p *PostgresContainer) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.DB.QueryContext(ctx, query, args...)
}

// QueryRow runs a SQL query expected to return a single row.
func (p *PostgresContainer) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.DB.QueryRowContext(ctx, query, args...)
}

// SeedBalance sets account's balance of asset directly.
func (p *PostgresContainer) SeedBalance(ctx context.Context, t testing.TB, asset, account id.Address, amount id.Amount) {
	t.Helper()
	_, err := p.Exec(ctx, `
		INSERT INTO ledger_balances (asset, account, amount) VALUES ($1, $2, $3)
		ON CONFLICT (asset, account) DO UPDATE SET amount = EXCLUDED.amount
	`, asset.Key(), account.Key(), amount)
	if err != nil {
		t.Fatalf("SeedBalance: %v", err)
	}
}

// SeedVerified marks account as verified in the local registry until expiresAt.
func (p *PostgresContainer) SeedVerified(ctx context.Context, t testing.TB, account id.Address, expiresAt time.Time) {
	t.Helper()
	_, err := p.Exec(ctx, `
		INSERT INTO verification_records (account, expires_at) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, account.Key(), expiresAt)
	if err != nil {
		t.Fatalf("SeedVerified: %v", err)
	}
}

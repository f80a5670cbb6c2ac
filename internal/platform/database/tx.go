package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Executor is the query surface shared by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// WithTx binds tx to ctx. Every Postgres store resolves its executor
// through Conn, so writes issued with this ctx join the same transaction.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction bound to ctx, if any.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Conn returns the ambient transaction or db.
func Conn(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

// RunInTx runs fn inside a transaction, committing on nil and rolling back
// otherwise. A ctx that already carries a transaction is reused so nested
// units of work commit once, at the outermost level.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	ctx, committed := WithAfterCommit(ctx)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed()
	return nil
}

type afterCommitKey struct{}

type afterCommit struct {
	mu  sync.Mutex
	fns []func()
}

// WithAfterCommit starts collecting AfterCommit callbacks on the returned
// ctx. The returned func runs them in registration order and must only be
// called once the unit of work has committed.
func WithAfterCommit(ctx context.Context) (context.Context, func()) {
	hooks := &afterCommit{}
	return context.WithValue(ctx, afterCommitKey{}, hooks), func() {
		hooks.mu.Lock()
		fns := hooks.fns
		hooks.fns = nil
		hooks.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}

// AfterCommit defers fn until the unit of work bound to ctx commits. A
// rolled back unit of work drops fn. Outside any unit of work fn runs now.
func AfterCommit(ctx context.Context, fn func()) {
	hooks, ok := ctx.Value(afterCommitKey{}).(*afterCommit)
	if !ok {
		fn()
		return
	}
	hooks.mu.Lock()
	hooks.fns = append(hooks.fns, fn)
	hooks.mu.Unlock()
}

// Transactor runs a unit of work for services that have no ledger of their own.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sqlTransactor struct {
	db *sql.DB
}

func (t sqlTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, t.db, fn)
}

type directTransactor struct{}

func (directTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(afterCommitKey{}).(*afterCommit); ok {
		return fn(ctx)
	}
	ctx, committed := WithAfterCommit(ctx)
	if err := fn(ctx); err != nil {
		return err
	}
	committed()
	return nil
}

// NewTransactor runs units of work on db. A nil db, as with in-memory
// stores, runs fn directly.
func NewTransactor(db *sql.DB) Transactor {
	if db == nil {
		return directTransactor{}
	}
	return sqlTransactor{db: db}
}

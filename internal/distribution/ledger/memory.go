package ledger

import (
	"context"
	"sync"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/domain"
)

type balanceKey struct {
	asset   domain.Address
	account domain.Address
}

type allowanceKey struct {
	token   domain.Address
	owner   domain.Address
	spender domain.Address
}

// Memory serializes every unit of work behind one lock and stages writes
// until fn succeeds.
type Memory struct {
	mu         sync.Mutex
	balances   map[balanceKey]domain.Amount
	allowances map[allowanceKey]domain.Amount
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[balanceKey]domain.Amount),
		allowances: make(map[allowanceKey]domain.Amount),
	}
}

type memoryTxKey struct{}

type memoryTx struct {
	book
	staged *staged
}

type staged struct {
	m          *Memory
	balances   map[balanceKey]domain.Amount
	allowances map[allowanceKey]domain.Amount
}

func (s *staged) balance(_ context.Context, asset, account domain.Address) (domain.Amount, error) {
	k := balanceKey{asset, account}
	if v, ok := s.balances[k]; ok {
		return v, nil
	}
	return s.m.balances[k], nil
}

func (s *staged) setBalance(_ context.Context, asset, account domain.Address, amount domain.Amount) error {
	s.balances[balanceKey{asset, account}] = amount
	return nil
}

func (s *staged) allowance(_ context.Context, token, owner, spender domain.Address) (domain.Amount, error) {
	k := allowanceKey{token, owner, spender}
	if v, ok := s.allowances[k]; ok {
		return v, nil
	}
	return s.m.allowances[k], nil
}

func (s *staged) setAllowance(_ context.Context, token, owner, spender domain.Address, amount domain.Amount) error {
	s.allowances[allowanceKey{token, owner, spender}] = amount
	return nil
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok && tx.staged.m == m {
		return fn(ctx, tx)
	}

	ctx, committed := database.WithAfterCommit(ctx)
	if err := m.run(ctx, fn); err != nil {
		return err
	}
	committed()
	return nil
}

func (m *Memory) run(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &staged{
		m:          m,
		balances:   make(map[balanceKey]domain.Amount),
		allowances: make(map[allowanceKey]domain.Amount),
	}
	tx := &memoryTx{book: book{s: s}, staged: s}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx), tx); err != nil {
		return err
	}
	for k, v := range s.balances {
		if v.IsZero() {
			delete(m.balances, k)
			continue
		}
		m.balances[k] = v
	}
	for k, v := range s.allowances {
		if v.IsZero() {
			delete(m.allowances, k)
			continue
		}
		m.allowances[k] = v
	}
	return nil
}

func (m *Memory) Balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error) {
	if tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok && tx.staged.m == m {
		return tx.Balance(ctx, asset, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[balanceKey{asset, account}], nil
}

func (m *Memory) Allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error) {
	if tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok && tx.staged.m == m {
		return tx.Allowance(ctx, token, owner, spender)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[allowanceKey{token, owner, spender}], nil
}

// Package ledger holds balances keyed by (asset, account). The native asset
// is the zero address; any other asset is a token with ERC20-style
// allowances. Every movement happens inside RunInTx and is all-or-nothing.
package ledger

import (
	"context"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

// Reader is the read-only view.
type Reader interface {
	Balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error)
	Allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error)
}

// Tx is one unit of work. Nothing it does is visible to other callers
// until the surrounding RunInTx returns nil.
type Tx interface {
	Reader
	// Transfer fails with CodeInsufficientValue when from cannot cover amount.
	Transfer(ctx context.Context, asset, from, to domain.Address, amount domain.Amount) error
	// TransferFrom spends spender's allowance over owner's tokens. Any
	// shortfall fails with CodeTransferFailed.
	TransferFrom(ctx context.Context, token, spender, owner, to domain.Address, amount domain.Amount) error
	Credit(ctx context.Context, asset, account domain.Address, amount domain.Amount) error
	Approve(ctx context.Context, token, owner, spender domain.Address, amount domain.Amount) error
}

// Ledger runs units of work. fn receives a ctx that other stores must use
// for their writes to join the same transaction; a ctx already inside a
// unit of work is reused rather than nested.
type Ledger interface {
	Reader
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// state is the storage primitive both backends provide; movement rules live
// in book so they cannot drift between backends.
type state interface {
	balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error)
	setBalance(ctx context.Context, asset, account domain.Address, amount domain.Amount) error
	allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error)
	setAllowance(ctx context.Context, token, owner, spender domain.Address, amount domain.Amount) error
}

type book struct {
	s state
}

func (b book) Balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error) {
	return b.s.balance(ctx, asset, account)
}

func (b book) Allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error) {
	return b.s.allowance(ctx, token, owner, spender)
}

func (b book) Transfer(ctx context.Context, asset, from, to domain.Address, amount domain.Amount) error {
	if amount.IsZero() {
		return nil
	}
	fromBal, err := b.s.balance(ctx, asset, from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return dErrors.New(dErrors.CodeInsufficientValue, "insufficient balance")
	}
	if from == to {
		return nil
	}
	debited, err := fromBal.Sub(amount)
	if err != nil {
		return err
	}
	toBal, err := b.s.balance(ctx, asset, to)
	if err != nil {
		return err
	}
	credited, err := toBal.Add(amount)
	if err != nil {
		return err
	}
	if err := b.s.setBalance(ctx, asset, from, debited); err != nil {
		return err
	}
	return b.s.setBalance(ctx, asset, to, credited)
}

func (b book) TransferFrom(ctx context.Context, token, spender, owner, to domain.Address, amount domain.Amount) error {
	if token == domain.NativeAsset {
		return dErrors.New(dErrors.CodeTransferFailed, "native value cannot be pulled by allowance")
	}
	allowed, err := b.s.allowance(ctx, token, owner, spender)
	if err != nil {
		return err
	}
	if allowed.Lt(amount) {
		return dErrors.New(dErrors.CodeTransferFailed, "allowance exceeded")
	}
	if err := b.Transfer(ctx, token, owner, to, amount); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInsufficientValue) {
			return dErrors.New(dErrors.CodeTransferFailed, "owner balance too low")
		}
		return err
	}
	remaining, err := allowed.Sub(amount)
	if err != nil {
		return err
	}
	return b.s.setAllowance(ctx, token, owner, spender, remaining)
}

func (b book) Credit(ctx context.Context, asset, account domain.Address, amount domain.Amount) error {
	bal, err := b.s.balance(ctx, asset, account)
	if err != nil {
		return err
	}
	next, err := bal.Add(amount)
	if err != nil {
		return err
	}
	return b.s.setBalance(ctx, asset, account, next)
}

func (b book) Approve(ctx context.Context, token, owner, spender domain.Address, amount domain.Amount) error {
	return b.s.setAllowance(ctx, token, owner, spender, amount)
}

package ledger

import (
	"context"
	"log/slog"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/access"
	"proofdrop/pkg/requestcontext"
)

// Service is the caller-facing surface: reads, approvals, and owner
// deposits that stand in for funding accounts from outside the system.
type Service struct {
	ledger Ledger
	owner  access.Guard
	logger *slog.Logger
}

func NewService(l Ledger, owner domain.Address, logger *slog.Logger) *Service {
	return &Service{ledger: l, owner: access.Owner(owner), logger: logger}
}

func (s *Service) Balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error) {
	bal, err := s.ledger.Balance(ctx, asset, account)
	if err != nil {
		return domain.Amount{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return bal, nil
}

func (s *Service) Allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error) {
	allowed, err := s.ledger.Allowance(ctx, token, owner, spender)
	if err != nil {
		return domain.Amount{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read allowance")
	}
	return allowed, nil
}

// Approve sets caller's allowance for spender over token, replacing any
// previous value.
func (s *Service) Approve(ctx context.Context, caller, token, spender domain.Address, amount domain.Amount) error {
	if token == domain.NativeAsset {
		return dErrors.New(dErrors.CodeInvalidInput, "native value has no allowances")
	}
	if spender.IsZero() {
		return dErrors.New(dErrors.CodeZeroAddress, "spender must not be zero")
	}
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Approve(ctx, token, caller, spender, amount)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to approve")
	}
	s.logger.InfoContext(ctx, "allowance set",
		"token", token.Hex(),
		"owner", caller.Hex(),
		"spender", spender.Hex(),
		"amount", amount.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Credit deposits amount into account. Owner-only.
func (s *Service) Credit(ctx context.Context, caller, asset, account domain.Address, amount domain.Amount) (domain.Amount, error) {
	if err := s.owner.Require(caller); err != nil {
		return domain.Amount{}, err
	}
	if account.IsZero() {
		return domain.Amount{}, dErrors.New(dErrors.CodeZeroAddress, "account must not be zero")
	}
	var balance domain.Amount
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Credit(ctx, asset, account, amount); err != nil {
			return err
		}
		var err error
		balance, err = tx.Balance(ctx, asset, account)
		return err
	})
	if err != nil {
		return domain.Amount{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit")
	}
	s.logger.InfoContext(ctx, "ledger credited",
		"asset", asset.Hex(),
		"account", account.Hex(),
		"amount", amount.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return balance, nil
}

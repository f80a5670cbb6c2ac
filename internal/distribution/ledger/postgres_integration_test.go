//go:build integration

package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"proofdrop/internal/distribution/ledger"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/testutil"
	"proofdrop/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	ledger   *ledger.Postgres
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.ledger = ledger.NewPostgres(s.postgres.DB)
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateModuleTables(context.Background()))
}

func (s *PostgresLedgerSuite) balance(asset, account domain.Address) string {
	bal, err := s.ledger.Balance(context.Background(), asset, account)
	s.Require().NoError(err)
	return bal.String()
}

func (s *PostgresLedgerSuite) TestConcurrentTransfersIntoNewAccountKeepEveryCredit() {
	ctx := context.Background()
	recipient := testutil.Accounts.Carol
	const senders = 16
	for i := range senders {
		s.postgres.SeedBalance(ctx, s.T(), domain.NativeAsset, testutil.NumberedAccount(i), domain.NewAmount(20))
	}

	result := testutil.RunConcurrent(senders, func(i int) error {
		return s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			return tx.Transfer(ctx, domain.NativeAsset, testutil.NumberedAccount(i), recipient, domain.NewAmount(uint64(i+1)))
		})
	})

	s.Equal(int32(senders), result.Successes)
	// 1 + 2 + ... + 16
	s.Equal("136", s.balance(domain.NativeAsset, recipient))
	for i := range senders {
		s.Equal(domain.NewAmount(uint64(19-i)).String(), s.balance(domain.NativeAsset, testutil.NumberedAccount(i)))
	}
}

func (s *PostgresLedgerSuite) TestConcurrentCreditsIntoNewAccount() {
	ctx := context.Background()
	token := testutil.Accounts.Token

	result := testutil.RunConcurrent(20, func(int) error {
		return s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			return tx.Credit(ctx, token, testutil.Accounts.Bob, domain.NewAmount(5))
		})
	})

	s.Equal(int32(20), result.Successes)
	s.Equal("100", s.balance(token, testutil.Accounts.Bob))
}

func (s *PostgresLedgerSuite) TestFailedUnitOfWorkLeavesNoBalance() {
	ctx := context.Background()
	s.postgres.SeedBalance(ctx, s.T(), domain.NativeAsset, testutil.Accounts.Alice, domain.NewAmount(3))

	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Transfer(ctx, domain.NativeAsset, testutil.Accounts.Alice, testutil.Accounts.Bob, domain.NewAmount(2)); err != nil {
			return err
		}
		return tx.Transfer(ctx, domain.NativeAsset, testutil.Accounts.Alice, testutil.Accounts.Bob, domain.NewAmount(2))
	})

	s.Require().Error(err)
	s.Equal("3", s.balance(domain.NativeAsset, testutil.Accounts.Alice))
	s.Equal("0", s.balance(domain.NativeAsset, testutil.Accounts.Bob))
}

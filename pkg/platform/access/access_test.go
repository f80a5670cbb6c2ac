package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/testutil"
)

func TestGuard(t *testing.T) {
	owner := testutil.Accounts.Owner

	tests := []struct {
		name   string
		guard  Guard
		caller domain.Address
		code   dErrors.Code
	}{
		{"owner admitted", Owner(owner), owner, ""},
		{"non-owner forbidden", Owner(owner), testutil.Accounts.Alice, dErrors.CodeForbidden},
		{"non-hub unauthorized", Hub(testutil.Accounts.Hub), owner, dErrors.CodeUnauthorized},
		{"non-mailbox rejected", Mailbox(testutil.Accounts.Mailbox), owner, dErrors.CodeOnlyMailbox},
		{"unset guard admits nobody", Mailbox(domain.Address{}), domain.Address{}, dErrors.CodeOnlyMailbox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.guard.Require(tt.caller)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

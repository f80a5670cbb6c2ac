// Package access is the single privileged-caller check every admin
// operation goes through.
package access

import (
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

// Role names a privileged address for error messages.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleHub     Role = "hub"
	RoleMailbox Role = "mailbox"
)

// Guard admits exactly one address.
type Guard struct {
	role    Role
	account domain.Address
	code    dErrors.Code
}

// Owner guards admin operations; violations are CodeForbidden.
func Owner(account domain.Address) Guard {
	return Guard{role: RoleOwner, account: account, code: dErrors.CodeForbidden}
}

// Hub guards the verification hook; violations are CodeUnauthorized.
func Hub(account domain.Address) Guard {
	return Guard{role: RoleHub, account: account, code: dErrors.CodeUnauthorized}
}

// Mailbox guards inbound delivery; violations are CodeOnlyMailbox.
func Mailbox(account domain.Address) Guard {
	return Guard{role: RoleMailbox, account: account, code: dErrors.CodeOnlyMailbox}
}

// Require fails unless caller is the guarded account. An unset (zero) guard
// admits nobody.
func (g Guard) Require(caller domain.Address) error {
	if g.account.IsZero() || caller != g.account {
		return dErrors.New(g.code, "caller is not the "+string(g.role))
	}
	return nil
}

func (g Guard) Account() domain.Address { return g.account }

package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite covers the error primitives every service boundary relies on:
// code preservation across wrapping, errors.Is by code, and the
// retryable/permanent split callers use to decide whether to poll again.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorString() {
	s.Run("message wins over code", func() {
		err := &Error{Code: CodeAirdropNotFound, Message: "airdrop 0x01 does not exist"}
		s.Equal("airdrop 0x01 does not exist", err.Error())
	})

	s.Run("code is used when message is empty", func() {
		err := &Error{Code: CodeAlreadyClaimed}
		s.Equal("already_claimed", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	s.Run("same code different message", func() {
		a := &Error{Code: CodeInvalidProof, Message: "leaf 1"}
		b := &Error{Code: CodeInvalidProof, Message: "leaf 2"}
		s.True(a.Is(b))
	})

	s.Run("different codes", func() {
		s.False((&Error{Code: CodeNotVerified}).Is(&Error{Code: CodeSenderNotVerified}))
	})

	s.Run("foreign error never matches", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
	})

	s.Run("errors.Is walks the chain", func() {
		inner := &Error{Code: CodeUntrustedSender, Message: "sender 0xab"}
		outer := fmt.Errorf("handle delivery: %w", inner)
		s.True(errors.Is(outer, &Error{Code: CodeUntrustedSender}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("domain code survives wrapping", func() {
		wrapped := Wrap(New(CodeAirdropExists, "id taken"), CodeInternal, "create airdrop")

		var de *Error
		s.Require().True(errors.As(wrapped, &de))
		s.Equal(CodeAirdropExists, de.Code)
		s.Equal("create airdrop", de.Message)
	})

	s.Run("foreign error takes the given code", func() {
		wrapped := Wrap(errors.New("connection reset"), CodeInternal, "load record")
		s.True(HasCode(wrapped, CodeInternal))
	})

	s.Run("root cause stays reachable", func() {
		root := errors.New("deadlock detected")
		s.True(errors.Is(Wrap(root, CodeInternal, "commit"), root))
	})
}

func (s *DomainErrorsSuite) TestHasCodeAndCodeOf() {
	s.True(HasCode(New(CodeZeroAddress, "recipient 3"), CodeZeroAddress))
	s.False(HasCode(errors.New("plain"), CodeZeroAddress))
	s.False(HasCode(nil, CodeZeroAddress))

	s.Equal(CodeTooManyRecipients, CodeOf(New(CodeTooManyRecipients, "201 > 200")))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
}

func (s *DomainErrorsSuite) TestCategories() {
	cases := map[Code]Category{
		CodeNotVerified:             CategoryAdmission,
		CodeSenderNotVerified:       CategoryAdmission,
		CodeAccountNotVerified:      CategoryAdmission,
		CodeUnauthorized:            CategoryAuthorization,
		CodeOnlyMailbox:             CategoryAuthorization,
		CodeNotCreator:              CategoryAuthorization,
		CodeInvalidOrigin:           CategoryCrossChain,
		CodeUntrustedSender:         CategoryCrossChain,
		CodeMailboxNotConfigured:    CategoryCrossChain,
		CodeAirdropNotFound:         CategoryState,
		CodeAirdropExists:           CategoryState,
		CodeAirdropAlreadyCancelled: CategoryState,
		CodeAlreadyClaimed:          CategoryState,
		CodeLengthMismatch:          CategoryInput,
		CodeZeroAddress:             CategoryInput,
		CodeEmptyMessage:            CategoryInput,
		CodeTooManyRecipients:       CategoryInput,
		CodeInsufficientValue:       CategoryInput,
		CodeInvalidProof:            CategoryProof,
		CodeTimeout:                 CategoryTransient,
		CodeInternal:                CategoryInternal,
	}
	for code, want := range cases {
		s.Equal(want, CategoryOf(code), "code %s", code)
	}
}

func (s *DomainErrorsSuite) TestIsRetryable() {
	s.True(IsRetryable(New(CodeTimeout, "delivery not observed")))
	s.True(IsRetryable(fmt.Errorf("await: %w", New(CodeTimeout, "x"))))
	s.False(IsRetryable(New(CodeInvalidProof, "bad proof")))
	s.False(IsRetryable(New(CodeNotVerified, "expired")))
	s.False(IsRetryable(errors.New("plain")))
	s.False(IsRetryable(nil))
}

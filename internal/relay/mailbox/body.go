package mailbox

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

var verificationArguments = func() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintType, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addressType}, {Type: uintType}}
}()

// EncodeVerification is abi.encode(address account, uint256 expiresAt).
func EncodeVerification(account domain.Address, expiresAt time.Time) ([]byte, error) {
	data, err := verificationArguments.Pack(account.Common(), big.NewInt(expiresAt.Unix()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "encode verification message")
	}
	return data, nil
}

// DecodeVerification is the receiving side of EncodeVerification.
func DecodeVerification(body []byte) (domain.Address, time.Time, error) {
	if len(body) == 0 {
		return domain.Address{}, time.Time{}, dErrors.New(dErrors.CodeEmptyMessage, "empty relay message")
	}
	values, err := verificationArguments.Unpack(body)
	if err != nil {
		return domain.Address{}, time.Time{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed relay message")
	}
	account, ok := values[0].(common.Address)
	if !ok {
		return domain.Address{}, time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "malformed relay account")
	}
	expiry, ok := values[1].(*big.Int)
	if !ok || !expiry.IsInt64() {
		return domain.Address{}, time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "relay expiry out of range")
	}
	return domain.Address(account), time.Unix(expiry.Int64(), 0).UTC(), nil
}

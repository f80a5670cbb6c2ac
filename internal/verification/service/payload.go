package service

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

// HookPayload is what the Hub hands the registry after it has validated a
// proof: abi.encode(bytes32 destinationChainId, bytes32 userIdentifier, bytes policyData).
type HookPayload struct {
	DestinationChainID domain.Bytes32
	UserIdentifier     domain.Bytes32
	PolicyData         []byte
}

// Account is the low 20 bytes of the user identifier.
func (p HookPayload) Account() domain.Address {
	return p.UserIdentifier.Address()
}

var hookArguments = mustArguments("bytes32", "bytes32", "bytes")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// DecodeHookPayload unpacks the Hub payload.
func DecodeHookPayload(data []byte) (*HookPayload, error) {
	values, err := hookArguments.Unpack(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed hook payload")
	}
	dest, ok1 := values[0].([32]byte)
	user, ok2 := values[1].([32]byte)
	policy, ok3 := values[2].([]byte)
	if !ok1 || !ok2 || !ok3 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "malformed hook payload")
	}
	return &HookPayload{
		DestinationChainID: domain.Bytes32(dest),
		UserIdentifier:     domain.Bytes32(user),
		PolicyData:         policy,
	}, nil
}

// EncodeHookPayload is the Hub side of DecodeHookPayload.
func EncodeHookPayload(p HookPayload) ([]byte, error) {
	data, err := hookArguments.Pack([32]byte(p.DestinationChainID), [32]byte(p.UserIdentifier), p.PolicyData)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "encode hook payload")
	}
	return data, nil
}

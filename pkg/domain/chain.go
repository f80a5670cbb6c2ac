package domain

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	dErrors "proofdrop/pkg/domain-errors"
)

// Address is a 20-byte account identifier.
type Address common.Address

// NativeAsset marks the chain's native currency wherever a token address is expected.
var NativeAsset = Address{}

// ParseAddress accepts a 0x-prefixed or bare 40-hex-character address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address: "+s)
	}
	return Address(common.HexToAddress(s)), nil
}

// MustAddress panics on malformed input. Intended for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) Common() common.Address { return common.Address(a) }
func (a Address) Bytes() []byte          { return common.Address(a).Bytes() }
func (a Address) Hex() string            { return common.Address(a).Hex() }
func (a Address) String() string         { return a.Hex() }
func (a Address) IsZero() bool           { return a == Address{} }

// Key is the lower-case hex form used for store keys and lock shards.
func (a Address) Key() string { return strings.ToLower(a.Hex()) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Bytes32 is a raw 32-byte word: remote sender ids, config ids, scope hashes,
// Merkle nodes.
type Bytes32 common.Hash

// Hash is a keccak256 digest.
type Hash = Bytes32

// ParseBytes32 requires exactly 32 bytes of 0x-prefixed hex.
func ParseBytes32(s string) (Bytes32, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return Bytes32{}, dErrors.New(dErrors.CodeInvalidInput, "invalid bytes32 hex: "+err.Error())
	}
	if len(raw) != 32 {
		return Bytes32{}, dErrors.New(dErrors.CodeInvalidInput, "bytes32 must be 32 bytes, got "+strconv.Itoa(len(raw)))
	}
	return Bytes32(common.BytesToHash(raw)), nil
}

// MustBytes32 panics on malformed input. Intended for constants and tests.
func MustBytes32(s string) Bytes32 {
	b, err := ParseBytes32(s)
	if err != nil {
		panic(err)
	}
	return b
}

// BytesToBytes32 left-pads (or left-truncates) b into a word.
func BytesToBytes32(b []byte) Bytes32 { return Bytes32(common.BytesToHash(b)) }

// SenderIDFromAddress is the remote-registry id convention: the 20-byte
// address left-padded to 32 bytes.
func SenderIDFromAddress(a Address) Bytes32 { return BytesToBytes32(a.Bytes()) }

// Address takes the low 20 bytes of the word.
func (b Bytes32) Address() Address { return Address(common.BytesToAddress(b[12:])) }

func (b Bytes32) Common() common.Hash { return common.Hash(b) }
func (b Bytes32) Bytes() []byte       { return b[:] }
func (b Bytes32) Hex() string         { return common.Hash(b).Hex() }
func (b Bytes32) String() string      { return b.Hex() }
func (b Bytes32) IsZero() bool        { return b == Bytes32{} }

func (b Bytes32) MarshalText() ([]byte, error) { return []byte(b.Hex()), nil }

func (b *Bytes32) UnmarshalText(text []byte) error {
	parsed, err := ParseBytes32(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// AirdropID identifies a Merkle airdrop for the life of the deployment.
type AirdropID Bytes32

func ParseAirdropID(s string) (AirdropID, error) {
	b, err := ParseBytes32(s)
	if err != nil {
		return AirdropID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid airdrop id")
	}
	return AirdropID(b), nil
}

func (id AirdropID) Hex() string    { return Bytes32(id).Hex() }
func (id AirdropID) String() string { return id.Hex() }
func (id AirdropID) IsZero() bool   { return Bytes32(id).IsZero() }

func (id AirdropID) MarshalText() ([]byte, error) { return []byte(id.Hex()), nil }

func (id *AirdropID) UnmarshalText(text []byte) error {
	parsed, err := ParseAirdropID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MessageID identifies a dispatched cross-chain envelope.
type MessageID Bytes32

func (id MessageID) Hex() string    { return Bytes32(id).Hex() }
func (id MessageID) String() string { return id.Hex() }
func (id MessageID) IsZero() bool   { return Bytes32(id).IsZero() }

func (id MessageID) MarshalText() ([]byte, error) { return []byte(id.Hex()), nil }

func (id *MessageID) UnmarshalText(text []byte) error {
	b, err := ParseBytes32(string(text))
	if err != nil {
		return err
	}
	*id = MessageID(b)
	return nil
}

// Domain is a transport-level chain identifier.
type Domain uint32

func ParseDomain(s string) (Domain, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid domain: "+s)
	}
	return Domain(v), nil
}

func (d Domain) String() string { return strconv.FormatUint(uint64(d), 10) }

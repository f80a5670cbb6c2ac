package domain

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	dErrors "proofdrop/pkg/domain-errors"
)

// Amount is an unsigned 256-bit value. The zero value is 0.
// Arithmetic is checked: overflow and underflow are errors, never wraps.
type Amount uint256.Int

func NewAmount(v uint64) Amount {
	return Amount(*uint256.NewInt(v))
}

// ParseAmount parses a base-10 string.
func ParseAmount(s string) (Amount, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "invalid amount: "+s)
	}
	return Amount(*v), nil
}

// MustAmount panics on malformed input. Intended for tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBig rejects negative values and values wider than 256 bits.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil || b.Sign() < 0 {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be non-negative")
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount exceeds 256 bits")
	}
	return Amount(*v), nil
}

func (a Amount) u() *uint256.Int {
	v := uint256.Int(a)
	return &v
}

// Uint256 returns a copy.
func (a Amount) Uint256() *uint256.Int { return a.u() }
func (a Amount) Big() *big.Int         { return a.u().ToBig() }
func (a Amount) IsZero() bool          { return a.u().IsZero() }
func (a Amount) String() string        { return a.u().Dec() }
func (a Amount) Cmp(b Amount) int      { return a.u().Cmp(b.u()) }
func (a Amount) Lt(b Amount) bool      { return a.u().Lt(b.u()) }
func (a Amount) Gt(b Amount) bool      { return a.u().Gt(b.u()) }

// Bytes32 is the big-endian 32-byte word, as used by packed encodings.
func (a Amount) Bytes32() [32]byte { return a.u().Bytes32() }

func (a Amount) Add(b Amount) (Amount, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(a.u(), b.u()); overflow {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount overflow")
	}
	return Amount(out), nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out uint256.Int
	if _, underflow := out.SubOverflow(a.u(), b.u()); underflow {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("amount underflow: %s - %s", a, b))
	}
	return Amount(out), nil
}

// Sum adds all values, failing on overflow.
func Sum(values []Amount) (Amount, error) {
	var total Amount
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

func Max(a, b Amount) Amount {
	if a.Lt(b) {
		return b
	}
	return a
}

func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores amounts as decimal text; the column type is NUMERIC(78,0).
func (a Amount) Value() (driver.Value, error) { return a.String(), nil }

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("negative amount %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	case nil:
		*a = Amount{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

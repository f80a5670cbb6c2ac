package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

// TestAmount_CheckedArithmetic validates the invariant that value arithmetic
// never wraps: escrow and refund math depends on it.
func TestAmount_CheckedArithmetic(t *testing.T) {
	t.Run("add overflows at 2^256", func(t *testing.T) {
		_, err := MustAmount(maxUint256).Add(NewAmount(1))
		require.Error(t, err)
	})

	t.Run("sub underflows below zero", func(t *testing.T) {
		_, err := NewAmount(1).Sub(NewAmount(2))
		require.Error(t, err)
	})

	t.Run("sum of dust example", func(t *testing.T) {
		total, err := Sum([]Amount{
			MustAmount("20000000000000000"),
			MustAmount("30000000000000000"),
		})
		require.NoError(t, err)
		assert.Equal(t, "50000000000000000", total.String())
	})

	t.Run("sum propagates overflow", func(t *testing.T) {
		_, err := Sum([]Amount{MustAmount(maxUint256), NewAmount(1)})
		require.Error(t, err)
	})
}

func TestAmount_Parse(t *testing.T) {
	_, err := ParseAmount("-5")
	require.Error(t, err)
	_, err = ParseAmount("1.5")
	require.Error(t, err)
	_, err = ParseAmount(maxUint256 + "0")
	require.Error(t, err)

	a, err := ParseAmount(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, NewAmount(42), a)
}

func TestAmount_FromBig(t *testing.T) {
	_, err := AmountFromBig(big.NewInt(-1))
	require.Error(t, err)

	a, err := AmountFromBig(big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, NewAmount(7), a)
}

func TestAmount_Compare(t *testing.T) {
	assert.True(t, NewAmount(1).Lt(NewAmount(2)))
	assert.True(t, NewAmount(3).Gt(NewAmount(2)))
	assert.Equal(t, NewAmount(9), Max(NewAmount(9), NewAmount(4)))
	assert.True(t, Amount{}.IsZero())
}

func TestAmount_Scan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("1000"))
	assert.Equal(t, NewAmount(1000), a)
	require.NoError(t, a.Scan([]byte("5")))
	assert.Equal(t, NewAmount(5), a)
	require.Error(t, a.Scan(3.14))

	v, err := NewAmount(12).Value()
	require.NoError(t, err)
	assert.Equal(t, "12", v)
}

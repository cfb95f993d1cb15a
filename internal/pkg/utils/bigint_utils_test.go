package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBigInt(t *testing.T) {
	t.Parallel()

	wei := func(s string) *big.Int {
		v, ok := new(big.Int).SetString(s, 10)
		require.True(t, ok)
		return v
	}

	assert.Equal(t, "0", FormatBigInt(nil, 18))
	assert.Equal(t, "0", FormatBigInt(big.NewInt(0), 18))
	assert.Equal(t, "1.2345", FormatBigInt(wei("1234500000000000000"), 18))
	assert.Equal(t, "1", FormatBigInt(wei("1000000000000000000"), 18))
	assert.Equal(t, "0.5", FormatBigInt(wei("50000000"), 8))
	assert.Equal(t, "12345", FormatBigInt(big.NewInt(12345), 0))
}

func TestCalculateValueUSD(t *testing.T) {
	t.Parallel()

	oneToken, _ := new(big.Int).SetString("1000000000000000000", 10)

	value, err := CalculateValueUSD(oneToken, 18, 2.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, value, 1e-9)

	half, _ := new(big.Int).SetString("500000000000000000", 10)
	value, err = CalculateValueUSD(half, 18, 10)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, value, 1e-9)

	// Balances far beyond float64 integer range still divide cleanly.
	huge, _ := new(big.Int).SetString("123456789000000000000000000000000", 10)
	value, err = CalculateValueUSD(huge, 18, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.23456789e14, value, 1e6)

	_, err = CalculateValueUSD(nil, 18, 1)
	assert.Error(t, err)

	_, err = CalculateValueUSD(oneToken, 18, -1)
	assert.Error(t, err)
}

func TestParseBigInt(t *testing.T) {
	t.Parallel()

	v, err := ParseBigInt("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int64())

	v, err = ParseBigInt("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v.String())

	_, err = ParseBigInt("0x1f")
	assert.Error(t, err)
}

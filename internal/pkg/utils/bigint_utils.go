package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatBigInt converts a raw big.Int amount to a human-readable decimal
// string for the given number of decimals.
// Example: amount=1234500000000000000, decimals=18 => "1.2345"
func FormatBigInt(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}

	amountFloat := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value := new(big.Float).Quo(amountFloat, divisor)

	formatted := value.Text('f', int(decimals))
	if strings.Contains(formatted, ".") {
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
	}
	if strings.HasPrefix(formatted, ".") {
		formatted = "0" + formatted
	}
	if formatted == "" {
		return "0"
	}
	return formatted
}

// CalculateValueUSD multiplies a raw amount by a USD price, adjusting for
// decimals. The multiplication happens in big.Float space so very large raw
// balances do not overflow before the division.
func CalculateValueUSD(amount *big.Int, decimals uint8, priceUSD float64) (float64, error) {
	if amount == nil {
		return 0, fmt.Errorf("amount is nil")
	}
	if priceUSD < 0 {
		return 0, fmt.Errorf("negative price: %f", priceUSD)
	}

	amountFloat := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	adjusted := new(big.Float).Quo(amountFloat, divisor)
	value := new(big.Float).Mul(adjusted, big.NewFloat(priceUSD))

	result, _ := value.Float64()
	return result, nil
}

// ParseBigInt parses a raw decimal integer string, returning zero for empty
// input. Explorer APIs occasionally serialize zero balances as "".
func ParseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer string: %q", s)
	}
	return v, nil
}

package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a decimal string such as "1.5" into its integer
// representation with the given number of decimals (1.5 at 18 -> 1500000000000000000).
// Fractions longer than decimals are rejected rather than truncated.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("amount is empty")
	}

	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = value[1:]
	}

	whole, fraction, hasDot := strings.Cut(value, ".")
	if hasDot && fraction == "" && whole == "" {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasDot && fraction != "" && !isDigits(fraction)) {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if len(fraction) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", value, decimals)
	}

	digits := whole + fraction + strings.Repeat("0", decimals-len(fraction))
	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if negative {
		result.Neg(result)
	}
	return result, nil
}

// FormatUnits renders an integer amount as a decimal string, trimming trailing zeros
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, remainder := new(big.Int).QuoRem(abs, divisor, new(big.Int))
	if remainder.Sign() == 0 {
		return sign + whole.String()
	}

	fraction := remainder.String()
	fraction = strings.Repeat("0", decimals-len(fraction)) + fraction
	fraction = strings.TrimRight(fraction, "0")
	return sign + whole.String() + "." + fraction
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

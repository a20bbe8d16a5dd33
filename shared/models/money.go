package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in whole rupiah. Fares never carry fractional units.
type Money int64

// String renders the amount with thousand separators, e.g. "Rp150.000".
func (m Money) String() string {
	n := int64(m)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%sRp%s", sign, formatThousand(n))
}

// ParseMoney parses "Rp 1.000", "1,000" or "1000" into an amount.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "rp")
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(".", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid money amount")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid money amount: %w", err)
	}
	return Money(n), nil
}

func formatThousand(n int64) string {
	if n == 0 {
		return "0"
	}
	str := strconv.FormatInt(n, 10)
	var out strings.Builder
	for i, c := range str {
		if i != 0 && (len(str)-i)%3 == 0 {
			out.WriteByte('.')
		}
		out.WriteRune(c)
	}
	return out.String()
}

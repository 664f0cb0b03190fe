package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatMoney renders cents as a dollar amount, e.g. 1050 -> "$10.50".
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, formatThousand(cents/100), cents%100)
}

// ParseMoney parses "10.50", "$1,200" or "7" into cents.
func ParseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("invalid amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative amount %q", s)
	}
	return int64(math.Floor(f*100 + 0.5)), nil
}

// TaxOf returns the tax due on cents at rate, rounded half-up.
func TaxOf(cents int64, rate float64) int64 {
	if rate <= 0 || cents <= 0 {
		return 0
	}
	return int64(math.Floor(float64(cents)*rate + 0.5))
}

func formatThousand(n int64) string {
	if n == 0 {
		return "0"
	}
	str := strconv.FormatInt(n, 10)
	var out strings.Builder
	for i, c := range str {
		if i != 0 && (len(str)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(c)
	}
	return out.String()
}

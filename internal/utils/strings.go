package utils

import "strings"

// NormalizeSpace trims s and collapses inner whitespace runs to one space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSeat is the canonical form of a seat code: " a 1" -> "A1".
func NormalizeSeat(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

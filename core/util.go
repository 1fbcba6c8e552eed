package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// MaskSecret keeps the first and last 8 characters of `s`; shorter values are fully masked.
func MaskSecret(s string) string {
	if len(s) <= 16 {
		return strings.Repeat("*", 8)
	}
	return s[:8] + "..." + s[len(s)-8:]
}

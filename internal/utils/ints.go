// Package utils holds small parsing helpers shared by the HTTP handlers.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int. Empty or malformed input,
// including surrounding spaces, yields def.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// BoundedInt is AtoiDefault for query limits: negative values select def
// and anything above max is clamped to max.
func BoundedInt(s string, def, max int) int {
	n := AtoiDefault(s, def)
	switch {
	case n < 0:
		return def
	case n > max:
		return max
	}
	return n
}

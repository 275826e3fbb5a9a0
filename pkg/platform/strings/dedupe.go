// Package strings provides string helpers for cottage-number lists and SQL patterns.
package strings

import (
	"strings"
)

// CottageSeparator delimits cottage numbers in a certificate's list.
const CottageSeparator = "-"

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  12 ", "13", "12", "", "  "})
//	// Returns: []string{"12", "13"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// CottageTokens splits a cottage list into its distinct, trimmed tokens.
func CottageTokens(list string) []string {
	if list == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(list, CottageSeparator))
}

// FirstCottageToken returns the text before the first separator, verbatim.
// Whitespace is kept so substring matching sees exactly what was typed.
func FirstCottageToken(list string) string {
	first, _, _ := strings.Cut(list, CottageSeparator)
	return first
}

// EscapeLike escapes LIKE wildcards so s matches literally under ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ContainsPattern builds a LIKE pattern matching any value containing s.
func ContainsPattern(s string) string {
	return "%" + EscapeLike(s) + "%"
}

// ContainsASCIIFold reports whether substr is within s, ignoring case for
// ASCII letters only. This matches SQLite's default LIKE.
func ContainsASCIIFold(s, substr string) bool {
	return strings.Contains(lowerASCII(s), lowerASCII(substr))
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

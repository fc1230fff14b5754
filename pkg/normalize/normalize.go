// Package normalize canonicalizes automotive part numbers so they can be used
// as join keys across independently sourced catalogs.
package normalize

import (
	"strings"
	"unicode"
)

// Normalized is the result of normalizing a raw part number
type Normalized struct {
	// Canonical is the upper-cased, punctuation-stripped, leading-zero-trimmed
	// form. Empty when the input contains no usable code.
	Canonical string
	// LineCode is the short alphabetic vendor/line prefix, when one could be
	// split off. Nil otherwise.
	LineCode *string
	// MfrCode is the remainder after the line code. Nil when no split happened
	// or the entire string became the line code.
	MfrCode *string
}

// Normalize is a pure function: identical inputs always yield identical
// outputs. No I/O, no clock, no randomness.
func Normalize(raw string) Normalized {
	canonical := Canonicalize(raw)

	n := Normalized{Canonical: canonical}
	line, mfr, ok := SplitLineCode(raw)
	if ok {
		n.LineCode = &line
		if mfr != "" {
			n.MfrCode = &mfr
		}
	}
	return n
}

// Canonicalize upper-cases, strips every character outside [A-Z0-9], then
// trims leading zeros. An all-zero result is treated as no usable code and
// returns the empty string.
func Canonicalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()

	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		// "000" carries no information as a join key
		return ""
	}
	return trimmed
}

// SplitLineCode extracts the alphabetic line-code prefix from a raw part
// number. The prefix run must be 2-4 characters long and be followed by a
// digit, or the whole string must be exactly 3 alphabetic characters. Strings
// shorter than 3 characters never yield a line code.
func SplitLineCode(raw string) (lineCode, mfrCode string, ok bool) {
	cleaned := alphanumUpper(raw)
	if len(cleaned) < 3 {
		return "", "", false
	}

	prefix := 0
	for prefix < len(cleaned) && unicode.IsLetter(rune(cleaned[prefix])) {
		prefix++
	}

	if prefix == len(cleaned) {
		// Fully alphabetic: only an exact 3-character string is a line code
		if prefix == 3 {
			return cleaned, "", true
		}
		return "", "", false
	}

	if prefix >= 2 && prefix <= 4 {
		return cleaned[:prefix], cleaned[prefix:], true
	}
	return "", "", false
}

func alphanumUpper(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

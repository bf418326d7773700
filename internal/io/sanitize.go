package ioutils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeCodes parses a block of text into a list of candidate codes.
//
// The following transformations are applied:
//   - CRLF and CR line endings → LF
//   - Each line is trimmed; blank lines are dropped
//   - Lines longer than maxLength characters are truncated, then trimmed again
//
// The result is stable: sanitizing the joined output yields the same list.
//
// Example:
//
//	SanitizeCodes("ABC123\n\nXYZ789\n", 256) // ["ABC123", "XYZ789"]
func SanitizeCodes(raw string, maxLength int) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var codes []string
	for _, line := range strings.Split(raw, "\n") {
		code := strings.TrimSpace(line)
		if code == "" {
			continue
		}
		code = strings.TrimSpace(truncateRunes(code, maxLength))
		if code == "" {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}

// SanitizeCookieValue makes a cookie value safe to place in a Cookie header.
//
// Surrounding whitespace, control characters (including CR/LF) and the ;
// and , delimiters are removed, then the value is truncated to at most
// maxLength bytes without splitting a rune.
func SanitizeCookieValue(value string, maxLength int) string {
	value = strings.TrimSpace(value)
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == ';' || r == ',' {
			return -1
		}
		return r
	}, value)

	if maxLength > 0 && len(value) > maxLength {
		value = value[:maxLength]
		for !utf8.ValidString(value) {
			value = value[:len(value)-1]
		}
	}
	return value
}

// Truncate shortens s for display, adding "..." when it was cut.
func Truncate(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}

func truncateRunes(s string, maxLength int) string {
	if maxLength <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	return string(r[:maxLength])
}

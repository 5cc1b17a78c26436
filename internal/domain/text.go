package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims surrounding whitespace and applies Unicode NFC so that
// visually identical titles and emails compare equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeEmail is NormalizeText plus lower-casing.
func NormalizeEmail(s string) string {
	return strings.ToLower(NormalizeText(s))
}

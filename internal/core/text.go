package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanText normalizes a free-text field from the source export.
//
// The value is NFC-composed first so decomposed accents survive the
// character filter. Every whitespace run collapses to a single space, runes
// outside printable ASCII (U+0020-U+007E) and the Latin-1 range
// (U+0080-U+00FF) are dropped, and the result is trimmed.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if !keepRune(r) {
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func keepRune(r rune) bool {
	return (r >= 0x20 && r <= 0x7E) || (r >= 0x80 && r <= 0xFF)
}

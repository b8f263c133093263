package schema

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// HeaderIndex maps cleaned column names to their position in the CSV row.
type HeaderIndex map[string]int

// MakeHeaderIndex indexes a header row. When a name repeats, the first
// position wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := CleanHeader(h)
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// CleanHeader canonicalizes a header cell for comparison: BOM and
// surrounding quotes removed, NFC composed, trimmed and lowercased.
func CleanHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = norm.NFC.String(s)
	return strings.ToLower(strings.TrimSpace(s))
}

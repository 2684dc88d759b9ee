package domain

import "strings"

// NormalizeQuery canonicalizes query text for cache keying so trivially
// different phrasings of the same question share one entry: lowercase,
// trimmed, inner whitespace collapsed. Exact-text normalization only.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

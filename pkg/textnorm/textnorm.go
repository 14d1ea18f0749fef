// Package textnorm holds the single case/whitespace normalization rule
// shared by blueprint validation (phrase-set disjointness) and the
// Detection Engine's exact-phrase matcher ("case/whitespace-
// normalized substring match"), so both apply the same notion of
// "the same phrase".
package textnorm

import "strings"

// Normalize lowercases text and collapses runs of whitespace to a single
// space, trimming the ends.
func Normalize(s string) string {
	fields:= strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

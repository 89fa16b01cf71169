package search

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	separatorRuns = regexp.MustCompile(`[-_\s]+`)
	structuredRe  = regexp.MustCompile(`^([a-z]+) ?([0-9]+)$`)
	digitsRe      = regexp.MustCompile(`^[0-9]+$`)
)

// Normalize lowercases a query and collapses dash, underscore, and
// whitespace runs to single spaces, so "PRIM-242", "prim_242", and
// "prim 242" all normalize identically.
func Normalize(rawQuery string) string {
	q := strings.ToLower(strings.TrimSpace(rawQuery))
	q = separatorRuns.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// StructuredQuery is a parsed "<prefix> <number>" ticket reference.
type StructuredQuery struct {
	Prefix string
	Number int
}

// ParseQuery attempts to read a normalized query as a structured ticket
// reference. The prefix is returned uppercased.
func ParseQuery(rawQuery string) (StructuredQuery, bool) {
	normalized := Normalize(rawQuery)
	m := structuredRe.FindStringSubmatch(normalized)
	if m == nil {
		return StructuredQuery{}, false
	}
	number, err := strconv.Atoi(m[2])
	if err != nil {
		return StructuredQuery{}, false
	}
	return StructuredQuery{Prefix: strings.ToUpper(m[1]), Number: number}, true
}

// isNumeric reports whether a normalized query is digits only.
func isNumeric(normalized string) bool {
	return normalized != "" && digitsRe.MatchString(normalized)
}

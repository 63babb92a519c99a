package search

import (
	"regexp"
	"strings"
)

// MatchWildcard reports whether value matches pattern, where * matches any
// sequence of characters (including none) and ? matches a single character.
func MatchWildcard(pattern, value string) bool {
	p := []rune(pattern)
	v := []rune(value)

	// Greedy matcher with single-star backtracking
	pi, vi := 0, 0
	star, mark := -1, 0
	for vi < len(v) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == v[vi]):
			pi++
			vi++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = vi
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			vi = mark
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// MatchField applies a wildcard filter the way the index mapping does: a
// keyword sub-field matches the whole value, an analyzed field matches any
// of its lower-cased tokens.
func MatchField(field, pattern, value string) bool {
	if strings.HasSuffix(field, KeywordSuffix) {
		return MatchWildcard(pattern, value)
	}
	lowered := strings.ToLower(pattern)
	for _, token := range Tokenize(value) {
		if MatchWildcard(lowered, token) {
			return true
		}
	}
	return false
}

// Tokenize splits an analyzed string field into lower-cased tokens.
// Sensor names are colon-separated URNs, so colons and whitespace separate
// tokens.
func Tokenize(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ':' || r == ' ' || r == '\t' || r == '\n'
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// WildcardRegexp translates a wildcard filter into an equivalent regular
// expression for stores that match with regexes. Patterns for analyzed
// fields must be applied case-insensitively.
func WildcardRegexp(field, pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	if strings.HasSuffix(field, KeywordSuffix) {
		return "^" + b.String() + "$"
	}
	return "(^|[:\\s])" + b.String() + "($|[:\\s])"
}

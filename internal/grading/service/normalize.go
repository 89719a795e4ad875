package service

import "strings"

var bracketQuoteStripper = strings.NewReplacer("[", "", "]", "", `"`, "", "'", "")

// Normalize canonicalizes program output for comparison: trim, collapse whitespace runs
// to one space, drop brackets and quotes, lower-case. Whitespace exposed by the strip is
// collapsed again so Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = collapseSpace(s)
	s = bracketQuoteStripper.Replace(s)
	return strings.ToLower(collapseSpace(s))
}

// OutputsMatch compares actual and expected after normalization.
func OutputsMatch(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

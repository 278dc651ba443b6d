// Package textnorm canonicalizes free-form names so that visually equivalent
// strings compare equal: NFKC normalization, whitespace trimming, removal of one
// layer of surrounding quotes, and full Unicode case folding.
package textnorm

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// folder is safe for concurrent use: the folding Caser is stateless.
var folder = cases.Fold()

// quotePairs maps an opening quote to the closing quotes accepted with it.
// Straight quotes close themselves; curly openers also accept the straight closer.
var quotePairs = map[rune][]rune{
	'"': {'"', '”'},
	'\'': {'\'', '’'},
	'“': {'”', '"'},
	'‘': {'’', '\''},
	'”': {'”'},
	'’': {'’'},
}

// Normalize returns the canonical comparison form of s.
// An empty or whitespace-only input (or a bare pair of quotes) yields "".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = strings.TrimSpace(s)
	s = stripQuotes(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return folder.String(s)
}

// Equal reports whether a and b normalize to the same non-empty string.
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}

func stripQuotes(s string) string {
	first, firstSize := utf8.DecodeRuneInString(s)
	last, lastSize := utf8.DecodeLastRuneInString(s)
	if len(s) < firstSize+lastSize {
		return s
	}
	closers, ok := quotePairs[first]
	if !ok {
		return s
	}
	for _, c := range closers {
		if c == last {
			return s[firstSize : len(s)-lastSize]
		}
	}
	return s
}

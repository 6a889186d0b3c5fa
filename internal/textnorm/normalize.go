// Package textnorm normalizes document text before numbers and keywords are matched against it.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var multiSpaceRe = regexp.MustCompile(`\s+`)

// dashReplacer maps the dash and minus variants PDF extraction produces onto
// ASCII '-', so "COVID‑19" and "2019–2021" match the same patterns as their
// ASCII spellings.
var dashReplacer = strings.NewReplacer(
	"\u2010", "-", // hyphen
	"\u2011", "-", // non-breaking hyphen
	"\u2012", "-", // figure dash
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\u2212", "-", // minus sign
	"\u00ad", "", // soft hyphen
	"\ufeff", "", // BOM / zero-width no-break space
	"\u200b", "", // zero-width space
)

// Normalize standardizes text by:
//  1. Applying Unicode NFKC (ligatures, full-width digits, no-break spaces)
//  2. Mapping dash variants to '-'
//  3. Collapsing whitespace runs into single spaces
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = dashReplacer.Replace(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fold returns the case-folded form of s for case-insensitive comparison.
// Casers are stateful, so each call builds its own.
func Fold(s string) string {
	return cases.Fold().String(s)
}

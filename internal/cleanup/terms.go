package cleanup

import (
	"regexp"
	"sort"
	"strings"
)

// termSet matches a list of keywords as whole words, case-insensitively.
type termSet struct {
	terms []string
	re    *regexp.Regexp
}

func newTermSet(terms []string) *termSet {
	uniq := dedupeTerms(terms)
	if len(uniq) == 0 {
		return &termSet{}
	}

	// Longest first so "information and communication technology" wins over "ict"-style prefixes.
	sorted := append([]string(nil), uniq...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	parts := make([]string, len(sorted))
	for i, t := range sorted {
		parts[i] = boundary(t, true) + regexp.QuoteMeta(t) + boundary(t, false)
	}
	return &termSet{
		terms: uniq,
		re:    regexp.MustCompile(`(?i)(?:` + strings.Join(parts, "|") + `)`),
	}
}

// boundary returns a word boundary for the given end of term, or nothing when
// that end is punctuation (e.g. "% of"), where \b would never match. A word
// ending also admits a plural suffix ("respondent" matches "respondents").
func boundary(term string, start bool) string {
	var c byte
	if start {
		c = term[0]
	} else {
		c = term[len(term)-1]
	}
	switch {
	case !isWordByte(c):
		return ""
	case start:
		return `\b`
	default:
		return `(?:s|es)?\b`
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Match returns the first matching term as it appears in text.
func (s *termSet) Match(text string) (string, bool) {
	if s.re == nil {
		return "", false
	}
	loc := s.re.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return text[loc[0]:loc[1]], true
}

// Spans returns the byte ranges of every match in text.
func (s *termSet) Spans(text string) [][]int {
	if s.re == nil {
		return nil
	}
	return s.re.FindAllStringIndex(text, -1)
}

func dedupeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

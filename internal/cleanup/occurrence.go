package cleanup

import (
	"math"
	"strings"

	"github.com/sells-group/metrics-cli/internal/model"
)

// occurrence is one appearance of a record's value inside its context.
type occurrence struct {
	start, end int
}

// valueSpellings returns the textual forms a value may take in a context:
// the plain form and, for integers of four or more digits, the comma-grouped form.
func valueSpellings(v float64) []string {
	plain := model.FormatValue(math.Abs(v))
	out := []string{plain}
	if v == math.Trunc(v) && math.Abs(v) >= 1000 {
		out = append(out, groupThousands(plain))
	}
	return out
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	pre := n % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// findOccurrences locates standalone appearances of the value in text. A match
// that is part of a longer number ("190", "19.5", "1,190") is not an occurrence.
func findOccurrences(text string, v float64) []occurrence {
	var out []occurrence
	for _, sp := range valueSpellings(v) {
		from := 0
		for {
			idx := strings.Index(text[from:], sp)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(sp)
			from = start + 1
			if partOfLargerNumber(text, start, end) {
				continue
			}
			out = append(out, occurrence{start: start, end: end})
		}
	}
	return out
}

func partOfLargerNumber(text string, start, end int) bool {
	if start > 0 {
		prev := text[start-1]
		if isDigit(prev) {
			return true
		}
		if (prev == '.' || prev == ',') && start > 1 && isDigit(text[start-2]) {
			return true
		}
	}
	if end < len(text) {
		next := text[end]
		if isDigit(next) {
			return true
		}
		if (next == '.' || next == ',') && end+1 < len(text) && isDigit(text[end+1]) {
			return true
		}
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// isIntegralYear reports whether v is a whole number in the plausible publication-year range.
func isIntegralYear(v float64) (int, bool) {
	if v != math.Trunc(v) || v < 1900 || v > 2100 {
		return 0, false
	}
	return int(v), true
}

// wordAround expands [start,end) to the surrounding non-space token, for reason strings.
func wordAround(text string, start, end int) string {
	for start > 0 && text[start-1] != ' ' {
		start--
	}
	for end < len(text) && text[end] != ' ' {
		end++
	}
	return strings.Trim(text[start:end], ".,;:()[]")
}

// Package extract finds numeric metrics in document text.
package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/config"
	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/taxonomy"
	"github.com/sells-group/metrics-cli/internal/textnorm"
)

// Options controls extraction.
type Options struct {
	// ContextChars caps the context stored with each record.
	ContextChars int
	// MinConfidence drops candidates scored below it.
	MinConfidence float64
}

// OptionsFromConfig converts the extract config section.
func OptionsFromConfig(c config.ExtractConfig) Options {
	return Options{ContextChars: c.ContextChars, MinConfidence: c.MinConfidence}
}

// numberRe captures: 1 currency prefix, 2 digits, 3 scale word, 4 unit suffix.
var numberRe = regexp.MustCompile(`(?i)(US\$|USD|EUR|GBP|\$|€|£)?\s?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)` +
	`(?:\s?(trillion|billion|million|thousand|tn|bn|mn|[kmb])\b)?` +
	`(?:\s?(%|percentage points?\b|percent\b|per cent\b|pp\b|x\b|times\b|jobs\b|workers\b|employees\b|hours\b|years\b|firms\b|companies\b|startups\b|patents\b|dollars\b|euros\b|USD\b|EUR\b))?`)

var yearRe = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

var scales = map[string]float64{
	"thousand": 1e3, "k": 1e3,
	"million": 1e6, "mn": 1e6, "m": 1e6,
	"billion": 1e9, "bn": 1e9, "b": 1e9,
	"trillion": 1e12, "tn": 1e12,
}

var currencies = map[string]string{
	"$": "USD", "us$": "USD", "usd": "USD", "dollars": "USD",
	"€": "EUR", "eur": "EUR", "euros": "EUR",
	"£": "GBP", "gbp": "GBP",
}

// FromText extracts metric records from text. Ids are "<sourceID>-<n>"
// numbered from 1 in text order.
func FromText(sourceID, text string, opts Options) []model.MetricRecord {
	text = textnorm.Normalize(text)

	var out []model.MetricRecord
	dropped := 0
	for _, sentence := range splitSentences(text) {
		for _, c := range candidates(sentence, opts) {
			if c.Confidence < opts.MinConfidence {
				dropped++
				continue
			}
			c.SourceID = sourceID
			c.Seq = len(out)
			c.OriginalID = fmt.Sprintf("%s-%d", sourceID, len(out)+1)
			out = append(out, c)
		}
	}

	zap.L().Debug("extract: scanned text",
		zap.String("source_id", sourceID),
		zap.Int("records", len(out)),
		zap.Int("below_min_confidence", dropped),
	)
	return out
}

// splitSentences breaks text after '.', '!' or '?' followed by a space.
// Decimal points are never followed by a space, so numbers stay intact.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func candidates(sentence string, opts Options) []model.MetricRecord {
	years := yearRe.FindAllStringIndex(sentence, -1)

	var out []model.MetricRecord
	for _, m := range numberRe.FindAllStringSubmatchIndex(sentence, -1) {
		// A leading space may be consumed by the optional currency prefix.
		start, end := m[4], m[1]
		if m[2] >= 0 {
			start = m[2]
		}
		if glued(sentence, start, end, m[6] >= 0 || m[8] >= 0) {
			continue
		}

		currency := group(sentence, m, 1)
		digits := group(sentence, m, 2)
		scale := strings.ToLower(group(sentence, m, 3))
		suffix := group(sentence, m, 4)

		value, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
		if err != nil {
			continue
		}
		if f, ok := scales[scale]; ok {
			value = roundScaled(value * f)
		}

		unit := unitFor(currency, suffix)
		bare := unit == "" && scale == ""
		if bare {
			if _, isYear := yearValue(value); isYear {
				// Bare years date other metrics; they are not metrics themselves.
				continue
			}
		}

		metricType := taxonomy.Infer(sentence, unit)
		if bare && metricType == taxonomy.TypeUnknown {
			continue
		}

		year := nearestYear(sentence, years, start, end)
		rec := model.MetricRecord{
			Value:      value,
			Unit:       unit,
			Year:       year,
			MetricType: metricType,
			Context:    window(sentence, start, end, opts.ContextChars),
		}
		rec.Confidence = score(rec, scale != "" || currency != "", bare)
		out = append(out, rec)
	}
	return out
}

func group(s string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return strings.TrimSpace(s[m[2*n]:m[2*n+1]])
}

// glued reports whether the match is part of a larger token: preceded by a
// letter or digit ("G20", "v2.0"), or directly followed by letters when no
// scale or unit was recognized ("5G", "3rd").
func glued(s string, start, end int, hasSuffix bool) bool {
	if start > 0 {
		prev := s[start-1]
		if isAlnum(prev) || prev == '.' || prev == ',' {
			return true
		}
	}
	if !hasSuffix && end < len(s) && isAlnum(s[end]) {
		return true
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func unitFor(currency, suffix string) string {
	if currency != "" {
		return currencies[strings.ToLower(currency)]
	}
	s := strings.ToLower(suffix)
	switch {
	case s == "":
		return ""
	case s == "%" || s == "percent" || s == "per cent":
		return "%"
	case s == "pp" || strings.HasPrefix(s, "percentage point"):
		return "pp"
	case s == "x" || s == "times":
		return "x"
	}
	if c, ok := currencies[s]; ok {
		return c
	}
	return s
}

// roundScaled removes float noise introduced by scaling ("4.1 billion").
func roundScaled(v float64) float64 {
	return math.Round(v*100) / 100
}

func yearValue(v float64) (int, bool) {
	if v != math.Trunc(v) || v < 1900 || v > 2100 {
		return 0, false
	}
	return int(v), true
}

// nearestYear picks the year token closest to the match, excluding the match itself.
func nearestYear(s string, years [][]int, start, end int) *int {
	best, bestDist := -1, math.MaxInt
	for i, y := range years {
		if y[0] >= start && y[1] <= end {
			continue
		}
		dist := y[0] - end
		if y[1] <= start {
			dist = start - y[1]
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return nil
	}
	v, _ := strconv.Atoi(s[years[best][0]:years[best][1]])
	return model.IntPtr(v)
}

// window returns the sentence, or a slice of it around the match trimmed to
// word boundaries when the sentence exceeds limit bytes.
func window(s string, start, end, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	pad := (limit - (end - start)) / 2
	if pad < 0 {
		pad = 0
	}
	lo := max(0, start-pad)
	hi := min(len(s), end+pad)
	if lo > 0 {
		if i := strings.IndexByte(s[lo:start], ' '); i >= 0 {
			lo += i + 1
		}
	}
	if hi < len(s) {
		if i := strings.LastIndexByte(s[end:hi], ' '); i >= 0 {
			hi = end + i
		}
	}
	return strings.TrimSpace(s[lo:hi])
}

// score rates how much evidence supports a candidate.
func score(rec model.MetricRecord, scaled, bare bool) float64 {
	c := 0.4
	if bare {
		c = 0.3
	}
	if rec.Unit != "" {
		c += 0.2
	}
	if rec.MetricType != taxonomy.TypeUnknown {
		c += 0.2
	}
	if rec.HasYear() {
		c += 0.1
	}
	if scaled {
		c += 0.1
	}
	return math.Min(1, math.Round(c*100)/100)
}

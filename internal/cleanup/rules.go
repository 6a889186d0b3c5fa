package cleanup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/taxonomy"
)

// Rule names as they appear in decisions and reports.
const (
	RuleCitationYear    = "citation_year"
	RuleCompoundTerm    = "compound_term"
	RuleFigureLabel     = "figure_label"
	RuleMeaningfulZero  = "meaningful_zero"
	RuleUnitConsistency = "unit_consistency"
	RuleDuplicate       = "duplicate"
	RuleDefault         = "default"
)

// input is what every rule sees for one record.
type input struct {
	rec  model.MetricRecord
	text string // normalized context
	occ  []occurrence
}

// verdict is a rule's classification of one record.
type verdict struct {
	action     model.Action
	reason     string
	confidence float64
	changes    map[string]string
}

// Rule classifies a record from its context. Evaluate returns false when the
// rule has nothing to say, letting the next rule decide.
type Rule interface {
	Name() string
	Evaluate(in *input) (verdict, bool)
}

// -- citation year --

var (
	parenRe    = regexp.MustCompile(`\(([^()]*)\)`)
	bracketRe  = regexp.MustCompile(`\[((?:19|20)\d{2})[a-z]?\]`)
	etAlRe     = regexp.MustCompile(`(?i)et al\.?,?\s+((?:19|20)\d{2})`)
	segmentRe  = regexp.MustCompile(`^(?:(?:see|e\.g\.,?|cf\.)\s+)?(?:\p{Lu}[\p{L}&.,' -]*?,?\s+)?((?:19|20)\d{2})[a-z]?(?:,\s*pp?\.\s*\d+(?:-\d+)?)?$`)
	narrateRe  = regexp.MustCompile(`(?:\p{Lu}[\p{L}'-]+|et al\.?)\s*$`)
	bareYearRe = regexp.MustCompile(`^((?:19|20)\d{2})[a-z]?$`)
)

// citationYears returns every year cited in text: parenthetical author-year
// citations, narrative citations ("Smith (2021)"), bracketed years, and "et al. 2021".
func citationYears(text string) map[int]bool {
	years := make(map[int]bool)
	add := func(s string) {
		var y int
		if _, err := fmt.Sscanf(s, "%d", &y); err == nil {
			years[y] = true
		}
	}

	for _, m := range parenRe.FindAllStringSubmatchIndex(text, -1) {
		inner := text[m[2]:m[3]]
		for _, seg := range strings.Split(inner, ";") {
			seg = strings.TrimSpace(seg)
			if bareYearRe.MatchString(seg) && len(strings.Split(inner, ";")) == 1 {
				// "(2021)" is only a citation when it follows an author name.
				if !narrateRe.MatchString(text[:m[0]]) {
					continue
				}
			}
			if sm := segmentRe.FindStringSubmatch(seg); sm != nil {
				add(sm[1])
			}
		}
	}
	for _, sm := range bracketRe.FindAllStringSubmatch(text, -1) {
		add(sm[1])
	}
	for _, sm := range etAlRe.FindAllStringSubmatch(text, -1) {
		add(sm[1])
	}
	return years
}

type citationYearRule struct{}

func (citationYearRule) Name() string { return RuleCitationYear }

func (citationYearRule) Evaluate(in *input) (verdict, bool) {
	cited := citationYears(in.text)
	if len(cited) == 0 {
		return verdict{}, false
	}
	if year, ok := isIntegralYear(in.rec.Value); ok && cited[year] {
		return verdict{
			action:     model.ActionRemove,
			reason:     fmt.Sprintf("value %d is a citation year", year),
			confidence: 0.95,
		}, true
	}
	// The record's own year can sit outside the citation-year range.
	if in.rec.HasYear() && in.rec.Value == float64(in.rec.YearValue()) {
		return verdict{
			action:     model.ActionRemove,
			reason:     fmt.Sprintf("value equals record year %d in a citation context", in.rec.YearValue()),
			confidence: 0.85,
		}, true
	}
	return verdict{}, false
}

// -- compound term --

// unitSuffixes may follow a number directly without making it part of a name ("4bn", "20kWh").
var unitSuffixes = map[string]bool{
	"k": true, "m": true, "mn": true, "mm": true, "b": true, "bn": true, "t": true, "tn": true, "tr": true,
	"x": true, "pp": true, "pc": true, "pct": true,
	"kg": true, "km": true, "kw": true, "kwh": true, "mw": true, "mwh": true, "gw": true, "gwh": true, "twh": true,
	"gb": true, "tb": true, "pb": true, "mb": true, "ghz": true, "h": true, "hr": true, "hrs": true, "min": true, "yr": true, "yrs": true,
}

type compoundTermRule struct {
	terms *termSet
}

func (compoundTermRule) Name() string { return RuleCompoundTerm }

func (r compoundTermRule) Evaluate(in *input) (verdict, bool) {
	if len(in.occ) == 0 {
		return verdict{}, false
	}
	spans := r.terms.Spans(in.text)

	var first string
	for _, o := range in.occ {
		term, glued := r.gluedTerm(in.text, o, spans)
		if !glued {
			return verdict{}, false
		}
		if first == "" {
			first = term
		}
	}
	return verdict{
		action:     model.ActionRemove,
		reason:     fmt.Sprintf("value %s is part of compound term %q", model.FormatValue(in.rec.Value), first),
		confidence: 0.9,
	}, true
}

// gluedTerm reports whether an occurrence belongs to an alphanumeric name such
// as "COVID-19", "G20", or "5G" rather than standing alone as a quantity.
func (r compoundTermRule) gluedTerm(text string, o occurrence, spans [][]int) (string, bool) {
	for _, sp := range spans {
		if o.start >= sp[0] && o.end <= sp[1] {
			return text[sp[0]:sp[1]], true
		}
	}

	if o.start > 0 {
		prev := text[o.start-1]
		if isLetter(prev) {
			return wordAround(text, o.start, o.end), true
		}
		if prev == '-' && o.start > 1 && isLetter(text[o.start-2]) {
			return wordAround(text, o.start, o.end), true
		}
	}

	if o.end < len(text) && isLetter(text[o.end]) {
		j := o.end
		for j < len(text) && isLetter(text[j]) {
			j++
		}
		if !unitSuffixes[strings.ToLower(text[o.end:j])] {
			return wordAround(text, o.start, o.end), true
		}
	}
	return "", false
}

// -- figure / table labels --

var (
	labelRe    = regexp.MustCompile(`(?i)\b(fig(?:ure)?s?\.?|tables?|charts?|exhibits?|box(?:es)?|sections?|chapters?|annex(?:es)?|appendix|pages?|pp?\.|footnotes?|endnotes?|notes?)\s*(\d+(?:\.\d+)*)`)
	footnoteRe = regexp.MustCompile(`\[(\d{1,3})\]|\^(\d{1,3})`)
)

type figureLabelRule struct{}

func (figureLabelRule) Name() string { return RuleFigureLabel }

func (figureLabelRule) Evaluate(in *input) (verdict, bool) {
	if len(in.occ) == 0 {
		return verdict{}, false
	}

	labels := make(map[int]string) // number start offset -> label kind
	for _, m := range labelRe.FindAllStringSubmatchIndex(in.text, -1) {
		labels[m[4]] = strings.TrimRight(strings.ToLower(in.text[m[2]:m[3]]), ".")
	}
	for _, m := range footnoteRe.FindAllStringSubmatchIndex(in.text, -1) {
		if m[2] >= 0 {
			labels[m[2]] = "footnote"
		} else {
			labels[m[4]] = "footnote"
		}
	}

	var kind string
	for _, o := range in.occ {
		k, ok := labels[o.start]
		if !ok {
			return verdict{}, false
		}
		if kind == "" {
			kind = k
		}
	}
	return verdict{
		action:     model.ActionRemove,
		reason:     fmt.Sprintf("value %s is a %s label", model.FormatValue(in.rec.Value), kind),
		confidence: 0.9,
	}, true
}

// -- meaningful zero --

type meaningfulZeroRule struct {
	survey *termSet
}

func (meaningfulZeroRule) Name() string { return RuleMeaningfulZero }

func (r meaningfulZeroRule) Evaluate(in *input) (verdict, bool) {
	if in.rec.Value != 0 {
		return verdict{}, false
	}
	if term, ok := r.survey.Match(in.text); ok {
		return verdict{
			action:     model.ActionKeep,
			reason:     fmt.Sprintf("zero value in survey context (%q)", term),
			confidence: 0.8,
		}, true
	}
	return verdict{
		action:     model.ActionRemove,
		reason:     "zero value without survey context",
		confidence: 0.6,
	}, true
}

// -- unit / metric type consistency --

type unitConsistencyRule struct{}

func (unitConsistencyRule) Name() string { return RuleUnitConsistency }

func (unitConsistencyRule) Evaluate(in *input) (verdict, bool) {
	metricType := strings.ToLower(strings.TrimSpace(in.rec.MetricType))
	if !taxonomy.IsKnown(metricType) {
		return verdict{}, false
	}
	cat := taxonomy.CategoryOf(in.rec.Unit)
	if taxonomy.Allows(metricType, cat) {
		return verdict{}, false
	}

	inferred := taxonomy.Infer(in.text, in.rec.Unit)
	if inferred != taxonomy.TypeUnknown && inferred != metricType {
		return verdict{
			action: model.ActionModify,
			reason: fmt.Sprintf("metric type %q is inconsistent with %s unit %q; reclassified as %q",
				metricType, cat, in.rec.Unit, inferred),
			confidence: 0.75,
			changes:    map[string]string{model.ChangeMetricType: inferred},
		}, true
	}
	return verdict{
		action:     model.ActionKeep,
		reason:     fmt.Sprintf("unit %q is inconsistent with metric type %q; needs review", in.rec.Unit, metricType),
		confidence: 0.4,
	}, true
}

// defaultVerdict keeps a record no rule objected to.
func defaultVerdict(rec model.MetricRecord) verdict {
	return verdict{
		action:     model.ActionKeep,
		reason:     "no issues detected",
		confidence: 0.5 + clamp01(rec.Confidence)/2,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

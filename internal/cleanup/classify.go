// Package cleanup classifies extracted metric records as keep, remove, or
// modify. It resolves duplicate groups to a single representative, applies
// ordered context rules, protects allow-listed sectors from removal, and
// scores the quality of what remains.
package cleanup

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/config"
	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/textnorm"
)

// Options configures a Classifier.
type Options struct {
	ProtectedTerms []string
	SurveyTerms    []string
	CompoundTerms  []string
	Weights        config.QualityWeights
}

// OptionsFromConfig builds Options from the cleanup config section, merging
// the optional rules file.
func OptionsFromConfig(c config.CleanupConfig) (Options, error) {
	opts := Options{
		ProtectedTerms: c.ProtectedTerms,
		SurveyTerms:    c.SurveyTerms,
		CompoundTerms:  c.CompoundTerms,
		Weights:        c.QualityWeights,
	}
	if c.RulesFile == "" {
		return opts, nil
	}
	rs, err := LoadRuleSet(c.RulesFile)
	if err != nil {
		return Options{}, err
	}
	return rs.merge(opts), nil
}

// Classifier applies the cleanup rules to a batch of records. It holds no
// per-batch state and is safe for concurrent use.
type Classifier struct {
	rules     []Rule
	protected *termSet
	weights   config.QualityWeights
}

// New compiles the keyword lists in opts into a Classifier.
func New(opts Options) *Classifier {
	return &Classifier{
		rules: []Rule{
			citationYearRule{},
			compoundTermRule{terms: newTermSet(opts.CompoundTerms)},
			figureLabelRule{},
			meaningfulZeroRule{survey: newTermSet(opts.SurveyTerms)},
			unitConsistencyRule{},
		},
		protected: newTermSet(opts.ProtectedTerms),
		weights:   opts.Weights,
	}
}

// Result is the outcome of classifying one batch. Decisions[i] classifies Records[i].
type Result struct {
	SourceID  string
	Records   []model.MetricRecord
	Decisions []model.Decision
	Groups    []model.DuplicateGroup
	Skipped   []model.SkippedRecord
	Summary   model.Summary
}

// Retained returns the kept and modified records with their changes applied,
// in input order.
func (r *Result) Retained() []model.MetricRecord {
	var out []model.MetricRecord
	for i, d := range r.Decisions {
		if d.Action.Retained() {
			out = append(out, d.Apply(r.Records[i]))
		}
	}
	return out
}

// Classify produces exactly one decision per record. Records are processed in
// Seq order; the output is a deterministic function of the input and options.
func (c *Classifier) Classify(sourceID string, records []model.MetricRecord, skipped []model.SkippedRecord) *Result {
	ordered := sortedBySeq(records)
	decisions := make([]model.Decision, len(ordered))

	for i, rec := range ordered {
		decisions[i] = c.decide(sourceID, rec)
	}

	groups := duplicateGroups(ordered)
	modelGroups := make([]model.DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		mg := g.toModel(ordered)
		rep := representative(g, decisions)
		mg.KeptID = ordered[rep].OriginalID

		for _, m := range g.members {
			decisions[m].GroupKey = g.key
			if m == rep {
				continue
			}
			decisions[m] = duplicateDecision(decisions[m], mg.KeptID)
		}
		modelGroups = append(modelGroups, mg)
	}

	summary := summarize(sourceID, decisions, modelGroups, len(skipped))
	summary.Quality = computeQualityScore(ordered, decisions, c.weights)

	zap.L().Info("cleanup: classified batch",
		zap.String("source_id", sourceID),
		zap.Int("total", summary.Total),
		zap.Int("kept", summary.Kept),
		zap.Int("removed", summary.Removed),
		zap.Int("modified", summary.Modified),
		zap.Int("skipped", summary.Skipped),
		zap.Int("duplicate_groups", summary.DuplicateGroups),
		zap.Float64("quality", summary.Quality.Final),
	)

	return &Result{
		SourceID:  sourceID,
		Records:   ordered,
		Decisions: decisions,
		Groups:    modelGroups,
		Skipped:   skipped,
		Summary:   summary,
	}
}

// decide runs the context rules for one record and applies sector protection.
func (c *Classifier) decide(sourceID string, rec model.MetricRecord) model.Decision {
	text := textnorm.Normalize(rec.Context)
	in := &input{rec: rec, text: text, occ: findOccurrences(text, rec.Value)}

	rule, v := RuleDefault, defaultVerdict(rec)
	for _, r := range c.rules {
		if got, ok := r.Evaluate(in); ok {
			rule, v = r.Name(), got
			break
		}
	}

	d := model.Decision{
		OriginalID: rec.OriginalID,
		SourceID:   sourceID,
		Action:     v.action,
		Rule:       rule,
		Reason:     v.reason,
		Confidence: clamp01(v.confidence),
		Changes:    v.changes,
	}

	term, protected := c.protected.Match(text)
	if protected {
		d.Protected = true
		if d.Action == model.ActionRemove {
			d = protect(d, term)
		}
	}

	if d.Action != model.ActionKeep {
		zap.L().Debug("cleanup: rule fired",
			zap.String("original_id", rec.OriginalID),
			zap.String("rule", d.Rule),
			zap.String("action", string(d.Action)),
			zap.String("reason", d.Reason),
		)
	}
	return d
}

// protect downgrades a removal of an allow-listed record to a review flag.
func protect(d model.Decision, term string) model.Decision {
	d.Action = model.ActionModify
	d.Reason = fmt.Sprintf("protected sector term %q; flagged for review instead of removal: %s", term, d.Reason)
	d.Confidence *= 0.5
	d.Changes = map[string]string{model.ChangeReview: d.Rule}
	return d
}

// representative picks the earliest member whose own verdict is not remove,
// or the earliest member when the whole group is noise.
func representative(g dupGroup, decisions []model.Decision) int {
	for _, m := range g.members {
		if decisions[m].Action != model.ActionRemove {
			return m
		}
	}
	return g.members[0]
}

// duplicateDecision replaces a non-representative member's verdict. Protected
// members are flagged for review rather than removed.
func duplicateDecision(d model.Decision, keptID string) model.Decision {
	reason := fmt.Sprintf("duplicate of %s", keptID)
	if d.Action == model.ActionRemove {
		reason += "; " + d.Reason
	}
	out := model.Decision{
		OriginalID: d.OriginalID,
		SourceID:   d.SourceID,
		Action:     model.ActionRemove,
		Rule:       RuleDuplicate,
		Reason:     reason,
		Confidence: 0.95,
		KeptID:     keptID,
		GroupKey:   d.GroupKey,
		Protected:  d.Protected,
	}
	if d.Protected {
		out.Action = model.ActionModify
		out.Reason = fmt.Sprintf("protected sector record; duplicate of %s flagged for review", keptID)
		out.Confidence = 0.5
		out.Changes = map[string]string{model.ChangeReview: RuleDuplicate}
	}
	return out
}

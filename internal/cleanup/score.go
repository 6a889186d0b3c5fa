package cleanup

import (
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/config"
	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/taxonomy"
)

// computeQualityScore combines four dimension scores over the retained records
// into a single 0.0-1.0 score using configurable weights. Zero total weight
// falls back to confidence-only.
func computeQualityScore(records []model.MetricRecord, decisions []model.Decision, weights config.QualityWeights) model.ScoreBreakdown {
	var retained []model.MetricRecord
	var retainedDecisions []model.Decision
	for i, d := range decisions {
		if d.Action.Retained() {
			retained = append(retained, d.Apply(records[i]))
			retainedDecisions = append(retainedDecisions, d)
		}
	}

	conf := scoreConfidence(retainedDecisions)
	comp := scoreCompleteness(retained)
	div := scoreDiversity(retained)
	uniq := scoreUniqueness(decisions)

	totalWeight := weights.Confidence + weights.Completeness + weights.Diversity + weights.Uniqueness
	if totalWeight == 0 {
		zap.L().Warn("cleanup: all quality weights are zero, falling back to confidence-only")
		return model.ScoreBreakdown{
			Confidence:   conf,
			Completeness: comp,
			Diversity:    div,
			Uniqueness:   uniq,
			Final:        conf,
		}
	}

	final := (weights.Confidence*conf + weights.Completeness*comp + weights.Diversity*div + weights.Uniqueness*uniq) / totalWeight

	return model.ScoreBreakdown{
		Confidence:   conf,
		Completeness: comp,
		Diversity:    div,
		Uniqueness:   uniq,
		Final:        final,
	}
}

// scoreConfidence is the mean decision confidence of retained records.
func scoreConfidence(decisions []model.Decision) float64 {
	if len(decisions) == 0 {
		return 0
	}
	var sum float64
	for _, d := range decisions {
		sum += d.Confidence
	}
	return sum / float64(len(decisions))
}

// scoreCompleteness averages three presence checks per record: year, unit,
// and a known metric type.
func scoreCompleteness(records []model.MetricRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		var n float64
		if r.HasYear() {
			n++
		}
		if r.Unit != "" {
			n++
		}
		if taxonomy.IsKnown(r.MetricType) {
			n++
		}
		sum += n / 3
	}
	return sum / float64(len(records))
}

// scoreDiversity is the share of known metric types represented.
func scoreDiversity(records []model.MetricRecord) float64 {
	seen := make(map[string]bool)
	for _, r := range records {
		if taxonomy.IsKnown(r.MetricType) {
			seen[r.MetricType] = true
		}
	}
	d := float64(len(seen)) / float64(taxonomy.KnownTypes())
	if d > 1 {
		return 1
	}
	return d
}

// scoreUniqueness penalizes the share of records that were redundant copies.
func scoreUniqueness(decisions []model.Decision) float64 {
	if len(decisions) == 0 {
		return 0
	}
	dups := 0
	for _, d := range decisions {
		if d.IsDuplicate() {
			dups++
		}
	}
	return 1 - float64(dups)/float64(len(decisions))
}

// summarize tallies decisions into a Summary.
func summarize(sourceID string, decisions []model.Decision, groups []model.DuplicateGroup, skipped int) model.Summary {
	s := model.Summary{
		SourceID:        sourceID,
		Total:           len(decisions),
		Skipped:         skipped,
		DuplicateGroups: len(groups),
		RuleCounts:      make(map[string]int),
	}
	for _, d := range decisions {
		switch d.Action {
		case model.ActionKeep:
			s.Kept++
		case model.ActionRemove:
			s.Removed++
			if d.IsDuplicate() {
				s.DuplicatesRemoved++
			}
		case model.ActionModify:
			s.Modified++
		}
		if d.Protected {
			s.Protected++
		}
		s.RuleCounts[d.Rule]++
	}
	if s.Total > 0 {
		s.RemovalRate = float64(s.Removed) / float64(s.Total)
	}
	return s
}

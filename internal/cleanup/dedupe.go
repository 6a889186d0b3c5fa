package cleanup

import (
	"sort"

	"github.com/sells-group/metrics-cli/internal/model"
)

// GroupDuplicates partitions records by exact (value, unit, year). Only groups
// with more than one member are returned, ordered by the Seq of their first
// member; members keep insertion order. KeptID is left empty: the
// representative depends on the context verdicts and is chosen by the Classifier.
func GroupDuplicates(records []model.MetricRecord) []model.DuplicateGroup {
	ordered := sortedBySeq(records)
	var out []model.DuplicateGroup
	for _, g := range duplicateGroups(ordered) {
		out = append(out, g.toModel(ordered))
	}
	return out
}

// dupGroup indexes into an ordered record slice.
type dupGroup struct {
	key     string
	members []int
}

func (g dupGroup) toModel(ordered []model.MetricRecord) model.DuplicateGroup {
	ids := make([]string, len(g.members))
	for i, m := range g.members {
		ids[i] = ordered[m].OriginalID
	}
	return model.DuplicateGroup{Key: g.key, MemberIDs: ids}
}

// duplicateGroups groups positions of ordered by GroupKey, dropping singletons.
func duplicateGroups(ordered []model.MetricRecord) []dupGroup {
	index := make(map[string]int)
	var groups []dupGroup
	for i, r := range ordered {
		key := r.GroupKey()
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, dupGroup{key: key})
		}
		groups[g].members = append(groups[g].members, i)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.members) > 1 {
			out = append(out, g)
		}
	}
	return out
}

// sortedBySeq returns a copy of records in insertion order.
func sortedBySeq(records []model.MetricRecord) []model.MetricRecord {
	out := append([]model.MetricRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

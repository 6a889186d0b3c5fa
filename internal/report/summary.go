package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/metrics-cli/internal/cleanup"
	"github.com/sells-group/metrics-cli/internal/model"
)

const (
	maxGroupsShown  = 10
	maxSkippedShown = 20
)

// FormatSummary renders the Markdown summary of a cleanup pass. It contains
// no timestamps, so identical results render identically.
func FormatSummary(res *cleanup.Result) string {
	s := res.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "# Cleanup Summary: %s\n\n", s.SourceID)

	b.WriteString("## Totals\n\n")
	b.WriteString("| Outcome | Records | Percent |\n")
	b.WriteString("|---|---:|---:|\n")
	fmt.Fprintf(&b, "| Keep | %d | %.1f%% |\n", s.Kept, s.Percent(s.Kept))
	fmt.Fprintf(&b, "| Remove | %d | %.1f%% |\n", s.Removed, s.Percent(s.Removed))
	fmt.Fprintf(&b, "| Modify | %d | %.1f%% |\n", s.Modified, s.Percent(s.Modified))
	fmt.Fprintf(&b, "| **Total classified** | **%d** | 100.0%% |\n\n", s.Total)

	fmt.Fprintf(&b, "- Skipped rows (invalid input): %d\n", s.Skipped)
	fmt.Fprintf(&b, "- Removal rate: %.1f%%\n", s.RemovalRate*100)
	fmt.Fprintf(&b, "- Protected sector records: %d\n", s.Protected)
	fmt.Fprintf(&b, "- Duplicate groups: %d (%d duplicates removed)\n\n", s.DuplicateGroups, s.DuplicatesRemoved)

	b.WriteString("## Rules\n\n")
	if len(s.RuleCounts) == 0 {
		b.WriteString("No records classified.\n\n")
	} else {
		rules := make([]string, 0, len(s.RuleCounts))
		for r := range s.RuleCounts {
			rules = append(rules, r)
		}
		sort.Strings(rules)
		b.WriteString("| Rule | Records | Percent |\n")
		b.WriteString("|---|---:|---:|\n")
		for _, r := range rules {
			fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", r, s.RuleCounts[r], s.Percent(s.RuleCounts[r]))
		}
		b.WriteString("\n")
	}

	q := s.Quality
	b.WriteString("## Quality Score\n\n")
	b.WriteString("| Dimension | Score |\n")
	b.WriteString("|---|---:|\n")
	fmt.Fprintf(&b, "| Confidence | %.3f |\n", q.Confidence)
	fmt.Fprintf(&b, "| Completeness | %.3f |\n", q.Completeness)
	fmt.Fprintf(&b, "| Diversity | %.3f |\n", q.Diversity)
	fmt.Fprintf(&b, "| Uniqueness | %.3f |\n", q.Uniqueness)
	fmt.Fprintf(&b, "| **Final** | **%.3f** |\n\n", q.Final)

	writeGroups(&b, res.Groups)
	writeSkipped(&b, res.Skipped)

	return b.String()
}

func writeGroups(b *strings.Builder, groups []model.DuplicateGroup) {
	b.WriteString("## Largest Duplicate Groups\n\n")
	if len(groups) == 0 {
		b.WriteString("No duplicate groups.\n\n")
		return
	}

	sorted := append([]model.DuplicateGroup(nil), groups...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].MemberIDs) > len(sorted[j].MemberIDs)
	})
	if len(sorted) > maxGroupsShown {
		sorted = sorted[:maxGroupsShown]
	}

	b.WriteString("| Value / unit / year | Members | Kept |\n")
	b.WriteString("|---|---:|---|\n")
	for _, g := range sorted {
		fmt.Fprintf(b, "| %s | %d | %s |\n", escapeCell(g.Key), len(g.MemberIDs), g.KeptID)
	}
	b.WriteString("\n")
}

func writeSkipped(b *strings.Builder, skipped []model.SkippedRecord) {
	if len(skipped) == 0 {
		return
	}
	b.WriteString("## Skipped Rows\n\n")
	b.WriteString("| Row | Original ID | Reason |\n")
	b.WriteString("|---:|---|---|\n")
	for i, s := range skipped {
		if i == maxSkippedShown {
			fmt.Fprintf(b, "\n...and %d more (see skipped_records.csv)\n", len(skipped)-maxSkippedShown)
			break
		}
		fmt.Fprintf(b, "| %d | %s | %s |\n", s.Row, s.OriginalID, escapeCell(s.Reason))
	}
	b.WriteString("\n")
}

// escapeCell keeps pipes in values from splitting a Markdown table cell.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

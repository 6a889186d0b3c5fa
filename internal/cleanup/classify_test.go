package cleanup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metrics-cli/internal/config"
	"github.com/sells-group/metrics-cli/internal/model"
)

// mixedBatch covers every rule and duplicate groups with noisy and
// protected members.
func mixedBatch() []model.MetricRecord {
	y2021 := model.IntPtr(2021)
	y2023 := model.IntPtr(2023)
	return []model.MetricRecord{
		metric("a", 0, 100, "USD", y2023, "revenue", "Table 100 lists AI vendors"),
		metric("b", 1, 100, "USD", y2023, "revenue", "AI vendors earned 100 USD per seat"),
		metric("c", 2, 100, "USD", y2023, "revenue", "Seat revenue of 100 USD was typical"),
		metric("d", 3, 50, "%", nil, "adoption", "Adoption reached 50% among large firms"),
		metric("e", 4, 50, "%", nil, "adoption", "Software adoption reached 50%"),
		metric("f", 5, 2021, "", y2021, "investment", "Investment rose sharply (Smith, 2021)"),
		metric("g", 6, 2021, "", y2021, "investment", "as reported (Jones, 2021)"),
		metric("h", 7, 19, "", nil, "unknown", "The COVID-19 shock"),
		metric("i", 8, 0, "%", nil, "employment", "0% of respondents expected layoffs"),
		metric("j", 9, 5e9, "USD", nil, "employment", "Firms will invest USD 5 billion in AI"),
		metric("k", 10, 2021, "", y2021, "investment", "ICT investment grew (OECD, 2021)"),
		metric("l", 11, 7, "jobs", model.IntPtr(2030), "employment", "AI could create 7 jobs per firm by 2030"),
	}
}

func decisionByID(res *Result, id string) model.Decision {
	for _, d := range res.Decisions {
		if d.OriginalID == id {
			return d
		}
	}
	return model.Decision{}
}

func TestClassify_OneDecisionPerRecordInOrder(t *testing.T) {
	t.Parallel()

	res := New(defaultOptions()).Classify("src", mixedBatch(), nil)

	require.Len(t, res.Decisions, 12)
	require.Len(t, res.Records, 12)
	for i, d := range res.Decisions {
		assert.Equal(t, res.Records[i].OriginalID, d.OriginalID)
		assert.Equal(t, "src", d.SourceID)
	}
}

func TestClassify_DuplicateRepresentative(t *testing.T) {
	t.Parallel()

	res := New(defaultOptions()).Classify("src", mixedBatch(), nil)

	require.Len(t, res.Groups, 3)

	// a is a table label, so b is the earliest clean member.
	assert.Equal(t, "100|USD|2023", res.Groups[0].Key)
	assert.Equal(t, []string{"a", "b", "c"}, res.Groups[0].MemberIDs)
	assert.Equal(t, "b", res.Groups[0].KeptID)

	b := decisionByID(res, "b")
	assert.Equal(t, model.ActionKeep, b.Action)
	assert.Empty(t, b.KeptID)
	assert.Equal(t, "100|USD|2023", b.GroupKey)

	a := decisionByID(res, "a")
	assert.Equal(t, model.ActionRemove, a.Action)
	assert.Equal(t, RuleDuplicate, a.Rule)
	assert.Equal(t, "b", a.KeptID)
	assert.Contains(t, a.Reason, "table label")

	c := decisionByID(res, "c")
	assert.Equal(t, model.ActionRemove, c.Action)
	assert.Equal(t, "b", c.KeptID)
}

func TestClassify_ProtectedDuplicateFlaggedForReview(t *testing.T) {
	t.Parallel()

	res := New(defaultOptions()).Classify("src", mixedBatch(), nil)

	assert.Equal(t, "d", res.Groups[1].KeptID)
	e := decisionByID(res, "e")
	assert.Equal(t, model.ActionModify, e.Action)
	assert.True(t, e.Protected)
	assert.Equal(t, "d", e.KeptID)
	assert.Equal(t, map[string]string{model.ChangeReview: RuleDuplicate}, e.Changes)
}

func TestClassify_ProtectedMemberRepresentsGroup(t *testing.T) {
	t.Parallel()

	res := New(defaultOptions()).Classify("src", mixedBatch(), nil)

	// f, g and k share 2021||2021; k is protected so it is not removed, and
	// it becomes the representative since f and g are citation years.
	g := res.Groups[2]
	assert.Equal(t, []string{"f", "g", "k"}, g.MemberIDs)
	assert.Equal(t, "k", g.KeptID)

	k := decisionByID(res, "k")
	assert.Equal(t, model.ActionModify, k.Action)
	assert.Empty(t, k.KeptID)
	assert.Equal(t, "k", decisionByID(res, "f").KeptID)
	assert.Equal(t, "k", decisionByID(res, "g").KeptID)
}

func TestClassify_GroupWithoutCleanMember(t *testing.T) {
	t.Parallel()

	y := model.IntPtr(2021)
	records := []model.MetricRecord{
		metric("x", 0, 2021, "", y, "investment", "(Smith, 2021)"),
		metric("y", 1, 2021, "", y, "investment", "(Jones, 2021)"),
	}
	res := New(defaultOptions()).Classify("src", records, nil)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, "x", res.Groups[0].KeptID)

	x := decisionByID(res, "x")
	assert.Equal(t, model.ActionRemove, x.Action)
	assert.Equal(t, RuleCitationYear, x.Rule)
	assert.Empty(t, x.KeptID)
	assert.Equal(t, "x", decisionByID(res, "y").KeptID)
}

func TestClassify_Invariants(t *testing.T) {
	t.Parallel()

	res := New(defaultOptions()).Classify("src", mixedBatch(), nil)
	byID := make(map[string]model.Decision)
	for _, d := range res.Decisions {
		byID[d.OriginalID] = d
	}

	t.Run("one representative per group", func(t *testing.T) {
		for _, g := range res.Groups {
			reps := 0
			for _, id := range g.MemberIDs {
				d := byID[id]
				assert.Equal(t, g.Key, d.GroupKey)
				if d.KeptID == "" {
					reps++
					assert.Equal(t, g.KeptID, id)
					continue
				}
				assert.Equal(t, g.KeptID, d.KeptID)
			}
			assert.Equal(t, 1, reps, "group %s", g.Key)
		}
	})

	t.Run("protected records are never removed", func(t *testing.T) {
		for _, d := range res.Decisions {
			if d.Protected {
				assert.NotEqual(t, model.ActionRemove, d.Action, d.OriginalID)
			}
		}
	})

	t.Run("own year in citation context is never kept", func(t *testing.T) {
		for i, rec := range res.Records {
			if rec.HasYear() && rec.Value == float64(rec.YearValue()) && len(citationYears(rec.Context)) > 0 {
				assert.NotEqual(t, model.ActionKeep, res.Decisions[i].Action, rec.OriginalID)
			}
		}
	})
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	c := New(defaultOptions())
	first := c.Classify("src", mixedBatch(), nil)
	second := c.Classify("src", mixedBatch(), nil)
	assert.Empty(t, cmp.Diff(first, second))

	// Slice order does not matter; Seq does.
	shuffled := mixedBatch()
	for i, j := 0, len(shuffled)-1; i < j; i, j = i+1, j-1 {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	third := New(defaultOptions()).Classify("src", shuffled, nil)
	assert.Empty(t, cmp.Diff(first, third))
}

func TestClassify_Summary(t *testing.T) {
	t.Parallel()

	skipped := []model.SkippedRecord{{Row: 14, Reason: "value: not a number"}}
	res := New(defaultOptions()).Classify("src", mixedBatch(), skipped)
	s := res.Summary

	assert.Equal(t, "src", s.SourceID)
	assert.Equal(t, 12, s.Total)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, s.Total, s.Kept+s.Removed+s.Modified)
	assert.Equal(t, 3, s.DuplicateGroups)
	// a, c, f, g
	assert.Equal(t, 4, s.DuplicatesRemoved)
	// a, c, f, g, h
	assert.Equal(t, 5, s.Removed)
	assert.InDelta(t, 5.0/12.0, s.RemovalRate, 1e-9)
	// a, c, e, f, g; e is a protected duplicate flagged for review
	assert.Equal(t, 5, s.RuleCounts[RuleDuplicate])
	assert.Equal(t, 3, s.Modified)
	assert.Equal(t, 2, s.Protected) // e, k
	assert.Equal(t, 1, s.RuleCounts[RuleCompoundTerm])
	assert.Greater(t, s.Quality.Final, 0.0)
	assert.LessOrEqual(t, s.Quality.Final, 1.0)
}

func TestClassify_Retained(t *testing.T) {
	t.Parallel()

	res := New(defaultOptions()).Classify("src", mixedBatch(), nil)
	retained := res.Retained()

	ids := make([]string, len(retained))
	for i, r := range retained {
		ids[i] = r.OriginalID
	}
	assert.Equal(t, []string{"b", "d", "e", "i", "j", "k", "l"}, ids)

	for _, r := range retained {
		if r.OriginalID == "j" {
			assert.Equal(t, "investment", r.MetricType)
		}
	}
}

func TestClassify_Empty(t *testing.T) {
	t.Parallel()

	res := New(defaultOptions()).Classify("src", nil, nil)
	assert.Empty(t, res.Decisions)
	assert.Empty(t, res.Groups)
	assert.Equal(t, 0, res.Summary.Total)
	assert.Equal(t, 0.0, res.Summary.RemovalRate)
}

func TestGroupDuplicates(t *testing.T) {
	t.Parallel()

	records := []model.MetricRecord{
		metric("r2", 2, 10, "%", nil, "growth", ""),
		metric("r0", 0, 10, "%", nil, "growth", ""),
		metric("r1", 1, 10, "%", model.IntPtr(2020), "growth", ""),
		metric("r3", 3, 10, "%", nil, "growth", ""),
		metric("r4", 4, 10, "USD", nil, "cost", ""),
	}

	groups := GroupDuplicates(records)
	require.Len(t, groups, 1)
	assert.Equal(t, "10|%|null", groups[0].Key)
	assert.Equal(t, []string{"r0", "r2", "r3"}, groups[0].MemberIDs)
	assert.Empty(t, groups[0].KeptID)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("without rules file", func(t *testing.T) {
		t.Parallel()
		opts, err := OptionsFromConfig(config.CleanupConfig{ProtectedTerms: []string{"ict"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"ict"}, opts.ProtectedTerms)
	})

	t.Run("extends lists", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("protected_terms: [fintech]\nsurvey_terms: [poll]\n"), 0o600))

		opts, err := OptionsFromConfig(config.CleanupConfig{
			ProtectedTerms: []string{"ict"},
			SurveyTerms:    []string{"survey"},
			RulesFile:      path,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"ict", "fintech"}, opts.ProtectedTerms)
		assert.Equal(t, []string{"survey", "poll"}, opts.SurveyTerms)
	})

	t.Run("replaces lists", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("replace: true\ncompound_terms: [\"Horizon 2020\"]\n"), 0o600))

		opts, err := OptionsFromConfig(config.CleanupConfig{
			ProtectedTerms: []string{"ict"},
			CompoundTerms:  []string{"G20"},
			RulesFile:      path,
		})
		require.NoError(t, err)
		assert.Empty(t, opts.ProtectedTerms)
		assert.Equal(t, []string{"Horizon 2020"}, opts.CompoundTerms)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := OptionsFromConfig(config.CleanupConfig{RulesFile: filepath.Join(t.TempDir(), "nope.yaml")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cleanup: read rules file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("protected_terms: {{"), 0o600))
		_, err := OptionsFromConfig(config.CleanupConfig{RulesFile: path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cleanup: parse rules file")
	})
}

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metrics-cli/internal/cleanup"
	"github.com/sells-group/metrics-cli/internal/config"
	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/monitoring"
	"github.com/sells-group/metrics-cli/internal/ocr"
	"github.com/sells-group/metrics-cli/internal/report"
	"github.com/sells-group/metrics-cli/internal/store"
)

const recordsCSV = `original_id,value,unit,year,metric_type,context,confidence
a,4.5,USD,2024,investment,Firms invested $4.5bn in AI in 2024.,0.9
b,4.5,USD,2024,investment,"Investment of $4.5bn, a record.",0.8
c,2021,,,,"(Smith, 2021) found large effects.",0.7
d,n/a,%,2023,adoption,bad value,0.5
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Output:  config.OutputConfig{Dir: filepath.Join(t.TempDir(), "out")},
		Extract: config.ExtractConfig{ContextChars: 240},
	}
}

func testClassifier() *cleanup.Classifier {
	return cleanup.New(cleanup.Options{
		ProtectedTerms: config.DefaultProtectedTerms,
		SurveyTerms:    config.DefaultSurveyTerms,
		CompoundTerms:  config.DefaultCompoundTerms,
		Weights:        config.QualityWeights{Confidence: 0.5, Completeness: 0.25, Diversity: 0.15, Uniqueness: 0.1},
	})
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_RecordsWithStore(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	cfg := testConfig(t)
	p := New(cfg, st, testClassifier(), nil, monitoring.NewMetrics())

	src := Source{ID: "src", Input: writeInput(t, "src.csv", recordsCSV)}
	res, err := p.Run(ctx, src)
	require.NoError(t, err)

	require.NotEmpty(t, res.RunID)
	assert.Len(t, res.Files, 5)
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, "src", report.SummaryFile))
	assert.Positive(t, res.Duration)

	summary := res.Cleanup.Summary
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Kept)
	assert.Equal(t, 2, summary.Removed)
	assert.Equal(t, 1, summary.Skipped)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, summary.Removed, run.Summary.Removed)

	decisions, err := st.ListDecisions(ctx, res.RunID, "")
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	assert.Equal(t, "a", decisions[0].OriginalID)

	removed, err := st.ListDecisions(ctx, res.RunID, model.ActionRemove)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
}

func TestRun_ExplicitOutDirAndXLSX(t *testing.T) {
	p := New(testConfig(t), nil, testClassifier(), nil, nil)
	out := filepath.Join(t.TempDir(), "custom")

	res, err := p.Run(context.Background(), Source{
		ID:     "src",
		Input:  writeInput(t, "src.csv", recordsCSV),
		OutDir: out,
		XLSX:   true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.Len(t, res.Files, 6)
	assert.FileExists(t, filepath.Join(out, report.XLSXFile))
}

func TestRun_FailureMarksRun(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	p := New(testConfig(t), st, testClassifier(), nil, nil)

	_, err := p.Run(ctx, Source{ID: "gone", Input: filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: run gone")

	runs, err := st.ListRuns(ctx, store.RunFilter{SourceID: "gone"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRun_RequiresSourceID(t *testing.T) {
	p := New(testConfig(t), nil, testClassifier(), nil, nil)
	_, err := p.Run(context.Background(), Source{Input: "x.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source id is required")
}

func TestRun_TextDocument(t *testing.T) {
	p := New(testConfig(t), nil, testClassifier(), nil, nil)
	input := writeInput(t, "report.txt", "In 2024, firms invested $4.5bn in AI. AI could create 97 million jobs by 2025.")

	res, err := p.Run(context.Background(), Source{ID: "report", Input: input})
	require.NoError(t, err)
	require.Len(t, res.Cleanup.Records, 2)
	assert.Equal(t, "report-1", res.Cleanup.Records[0].OriginalID)
	assert.Equal(t, 4.5e9, res.Cleanup.Records[0].Value)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pdf     ocr.Extractor
		input   string
		wantErr string
	}{
		{"unsupported extension", nil, "slides.pptx", "unsupported input"},
		{"pdf without extractor", nil, "report.pdf", "no PDF extractor"},
		{"pdf extractor fails", ocr.NewPdfToText("/nonexistent/pdftotext"), "report.pdf", "extract text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(testConfig(t), nil, testClassifier(), tt.pdf, nil)
			_, err := p.Load(context.Background(), Source{ID: "s", Input: filepath.Join(t.TempDir(), tt.input)})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClassify_WritesNothing(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, nil, testClassifier(), nil, nil)

	res, err := p.Classify(context.Background(), Source{ID: "src", Input: writeInput(t, "src.csv", recordsCSV)})
	require.NoError(t, err)
	assert.Len(t, res.Decisions, 3)
	assert.Len(t, res.Retained(), 1)
	assert.NoDirExists(t, cfg.Output.Dir)
}

func TestIsDocument(t *testing.T) {
	assert.True(t, IsDocument("a.PDF"))
	assert.True(t, IsDocument("notes.md"))
	assert.False(t, IsDocument("records.csv"))
	assert.False(t, IsDocument("noext"))
}

package report

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/cleanup"
	"github.com/sells-group/metrics-cli/internal/model"
)

// Output file names.
const (
	KeepFile    = "records_to_keep.csv"
	RemoveFile  = "records_to_remove.csv"
	ModifyFile  = "records_to_modify.csv"
	SkippedFile = "skipped_records.csv"
	SummaryFile = "summary.md"
	XLSXFile    = "cleanup.xlsx"
)

// Options selects optional outputs.
type Options struct {
	XLSX bool
}

// WriteAll writes every report file for res into dir, creating it if needed,
// and returns the written paths. Rows follow input order.
func WriteAll(dir string, res *cleanup.Result, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create dir %s", dir)
	}

	byAction := make(map[model.Action][]decisionRow, len(model.Actions))
	for i, d := range res.Decisions {
		byAction[d.Action] = append(byAction[d.Action], newDecisionRow(res.Records[i], d))
	}

	var written []string
	for _, f := range []struct {
		name   string
		action model.Action
	}{
		{KeepFile, model.ActionKeep},
		{RemoveFile, model.ActionRemove},
		{ModifyFile, model.ActionModify},
	} {
		path := filepath.Join(dir, f.name)
		if err := writeCSV(path, byAction[f.action]); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	skippedPath := filepath.Join(dir, SkippedFile)
	if err := writeCSV(skippedPath, res.Skipped); err != nil {
		return written, err
	}
	written = append(written, skippedPath)

	summaryPath := filepath.Join(dir, SummaryFile)
	if err := os.WriteFile(summaryPath, []byte(FormatSummary(res)), 0o644); err != nil {
		return written, eris.Wrapf(err, "report: write %s", summaryPath)
	}
	written = append(written, summaryPath)

	if opts.XLSX {
		xlsxPath := filepath.Join(dir, XLSXFile)
		if err := WriteXLSX(xlsxPath, res); err != nil {
			return written, err
		}
		written = append(written, xlsxPath)
	}

	zap.L().Info("report: wrote outputs",
		zap.String("source_id", res.SourceID),
		zap.String("dir", dir),
		zap.Int("files", len(written)),
	)
	return written, nil
}

package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/metrics-cli/internal/cleanup"
	"github.com/sells-group/metrics-cli/internal/model"
)

var decisionHeader = []string{
	"original_id", "value", "unit", "year", "metric_type", "context",
	"action", "rule", "reason", "decision_confidence", "kept_record_id", "changes",
}

// WriteXLSX writes one sheet per action plus a skipped sheet.
func WriteXLSX(path string, res *cleanup.Result) error {
	f := xlsx.NewFile()

	sheets := make(map[model.Action]*xlsx.Sheet, len(model.Actions))
	for _, a := range model.Actions {
		sheet, err := f.AddSheet(string(a))
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", a)
		}
		addRow(sheet, decisionHeader)
		sheets[a] = sheet
	}

	for i, d := range res.Decisions {
		row := newDecisionRow(res.Records[i], d)
		addRow(sheets[d.Action], []string{
			row.OriginalID, row.Value, row.Unit, row.Year, row.MetricType, row.Context,
			row.Action, row.Rule, row.Reason, row.DecisionConfidence, row.KeptRecordID, row.Changes,
		})
	}

	skipped, err := f.AddSheet("skipped")
	if err != nil {
		return eris.Wrap(err, "report: add sheet skipped")
	}
	addRow(skipped, []string{"row", "original_id", "reason"})
	for _, s := range res.Skipped {
		r := skipped.AddRow()
		r.AddCell().SetInt(s.Row)
		r.AddCell().SetString(s.OriginalID)
		r.AddCell().SetString(s.Reason)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

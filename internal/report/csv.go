// Package report writes cleanup results as CSV, Markdown, and XLSX files.
package report

import (
	"encoding/csv"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/metrics-cli/internal/model"
)

// recordRow is the extraction output format, readable by ingest.
type recordRow struct {
	SourceID   string `csv:"source_id"`
	OriginalID string `csv:"original_id"`
	Value      string `csv:"value"`
	Unit       string `csv:"unit"`
	Year       string `csv:"year"`
	MetricType string `csv:"metric_type"`
	Context    string `csv:"context"`
	Confidence string `csv:"confidence"`
}

// decisionRow is a record joined with its cleanup decision.
type decisionRow struct {
	SourceID           string `csv:"source_id"`
	OriginalID         string `csv:"original_id"`
	Value              string `csv:"value"`
	Unit               string `csv:"unit"`
	Year               string `csv:"year"`
	MetricType         string `csv:"metric_type"`
	Context            string `csv:"context"`
	Confidence         string `csv:"confidence"`
	Action             string `csv:"action"`
	Rule               string `csv:"rule"`
	Reason             string `csv:"reason"`
	DecisionConfidence string `csv:"decision_confidence"`
	KeptRecordID       string `csv:"kept_record_id"`
	GroupKey           string `csv:"group_key"`
	Protected          bool   `csv:"protected"`
	Changes            string `csv:"changes"`
}

func newRecordRow(r model.MetricRecord) recordRow {
	year := ""
	if r.HasYear() {
		year = strconv.Itoa(r.YearValue())
	}
	return recordRow{
		SourceID:   r.SourceID,
		OriginalID: r.OriginalID,
		Value:      model.FormatValue(r.Value),
		Unit:       r.Unit,
		Year:       year,
		MetricType: r.MetricType,
		Context:    r.Context,
		Confidence: formatScore(r.Confidence),
	}
}

func newDecisionRow(r model.MetricRecord, d model.Decision) decisionRow {
	rec := newRecordRow(r)
	return decisionRow{
		SourceID:           rec.SourceID,
		OriginalID:         rec.OriginalID,
		Value:              rec.Value,
		Unit:               rec.Unit,
		Year:               rec.Year,
		MetricType:         rec.MetricType,
		Context:            rec.Context,
		Confidence:         rec.Confidence,
		Action:             string(d.Action),
		Rule:               d.Rule,
		Reason:             d.Reason,
		DecisionConfidence: formatScore(d.Confidence),
		KeptRecordID:       d.KeptID,
		GroupKey:           d.GroupKey,
		Protected:          d.Protected,
		Changes:            formatChanges(d.Changes),
	}
}

// formatScore renders a 0..1 score with at most four decimals.
func formatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

// formatChanges renders changes as "key=value" pairs in key order.
func formatChanges(changes map[string]string) string {
	if len(changes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + changes[k]
	}
	return strings.Join(parts, ";")
}

// writeCSV writes rows with a header, even when rows is empty.
func writeCSV[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)

	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return eris.Wrapf(err, "report: write header %s", path)
	}
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return eris.Wrapf(err, "report: write row %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "report: flush %s", path)
	}
	if err := f.Sync(); err != nil {
		return eris.Wrapf(err, "report: sync %s", path)
	}
	return nil
}

// WriteRecordsCSV writes extracted records in the format ReadRecords accepts.
func WriteRecordsCSV(path string, records []model.MetricRecord) error {
	rows := make([]recordRow, len(records))
	for i, r := range records {
		rows[i] = newRecordRow(r)
	}
	return writeCSV(path, rows)
}

package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/model"
)

// rowParser validates rows and accumulates the batch.
type rowParser struct {
	batch Batch
	seen  map[string]bool
}

func newRowParser(sourceID string) *rowParser {
	return &rowParser{
		batch: Batch{SourceID: sourceID},
		seen:  make(map[string]bool),
	}
}

// add parses one row. row is the 1-based position in the file used in skip reports.
func (p *rowParser) add(row int, fields map[string]string) {
	rec, err := p.parse(fields)
	if err != nil {
		skip := model.SkippedRecord{
			Row:        row,
			OriginalID: strings.TrimSpace(fields["original_id"]),
			Reason:     err.Error(),
		}
		zap.L().Warn("ingest: skipping row",
			zap.String("source_id", p.batch.SourceID),
			zap.Int("row", row),
			zap.String("original_id", skip.OriginalID),
			zap.String("reason", skip.Reason),
		)
		p.batch.Skipped = append(p.batch.Skipped, skip)
		return
	}

	rec.Seq = len(p.batch.Records)
	p.seen[rec.OriginalID] = true
	p.batch.Records = append(p.batch.Records, rec)
}

func (p *rowParser) parse(fields map[string]string) (model.MetricRecord, error) {
	id := strings.TrimSpace(fields["original_id"])
	if id == "" {
		return model.MetricRecord{}, eris.New("original_id: missing")
	}
	if p.seen[id] {
		return model.MetricRecord{}, eris.Errorf("original_id: duplicate %q", id)
	}

	if src := strings.TrimSpace(fields["source_id"]); src != "" && src != p.batch.SourceID {
		return model.MetricRecord{}, eris.Errorf("source_id: row belongs to %q", src)
	}

	value, err := parseValue(fields["value"])
	if err != nil {
		return model.MetricRecord{}, err
	}

	year, err := parseYear(fields["year"])
	if err != nil {
		return model.MetricRecord{}, err
	}

	confidence, err := parseConfidence(fields["confidence"])
	if err != nil {
		return model.MetricRecord{}, err
	}

	return model.MetricRecord{
		SourceID:   p.batch.SourceID,
		OriginalID: id,
		Value:      value,
		Unit:       strings.TrimSpace(fields["unit"]),
		Year:       year,
		MetricType: strings.ToLower(strings.TrimSpace(fields["metric_type"])),
		Context:    fields["context"],
		Confidence: confidence,
	}, nil
}

// parseValue accepts plain and comma-grouped numbers ("1,200.5").
func parseValue(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, eris.New("value: missing")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("value: %q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("value: %q is not finite", s)
	}
	return v, nil
}

// parseYear treats blanks and null markers as no year. Spreadsheet exports
// write whole years as floats ("2021.0"), which are accepted.
func parseYear(s string) (*int, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "nan", "n/a":
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, eris.Errorf("year: %q is not a whole number", s)
	}
	if f < 1000 || f > 9999 {
		return nil, eris.Errorf("year: %q is out of range", s)
	}
	return model.IntPtr(int(f)), nil
}

// parseConfidence requires a value in [0, 1]; a blank confidence is 0.
func parseConfidence(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	c, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("confidence: %q is not a number", s)
	}
	if math.IsNaN(c) || c < 0 || c > 1 {
		return 0, eris.Errorf("confidence: %s is outside 0..1", s)
	}
	return c, nil
}

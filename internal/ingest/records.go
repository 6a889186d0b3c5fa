package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/model"
)

// Batch is the parsed content of one input file.
type Batch struct {
	SourceID string
	Records  []model.MetricRecord
	Skipped  []model.SkippedRecord
}

// Supported reports whether path has an extension ReadRecords understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".json", ".xlsx":
		return true
	}
	return false
}

// ReadRecords loads every row of a CSV, TSV, JSON, or XLSX file. Rows with
// missing or invalid fields are skipped and reported in Batch.Skipped; only a
// file that cannot be read at all returns an error. Accepted records get Seq
// in file order.
func ReadRecords(ctx context.Context, path, sourceID string) (*Batch, error) {
	p := newRowParser(sourceID)

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv":
		err = readDelimited(ctx, path, ext, p)
	case ".json":
		err = readJSON(ctx, path, p)
	case ".xlsx":
		err = readXLSX(ctx, path, p)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	zap.L().Info("ingest: loaded records",
		zap.String("source_id", sourceID),
		zap.String("path", path),
		zap.Int("records", len(p.batch.Records)),
		zap.Int("skipped", len(p.batch.Skipped)),
	)
	return &p.batch, nil
}

func readDelimited(ctx context.Context, path, ext string, p *rowParser) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "open file")
	}
	defer f.Close() //nolint:errcheck

	opts := CSVOptions{LazyQuotes: true}
	if ext == ".tsv" {
		opts.Delimiter = '\t'
	}
	rowCh, errCh := StreamCSV(ctx, f, opts)
	return consumeRows(p, rowCh, errCh)
}

func readXLSX(ctx context.Context, path string, p *rowParser) error {
	rowCh, errCh := StreamXLSX(ctx, path, XLSXOptions{})
	return consumeRows(p, rowCh, errCh)
}

// consumeRows feeds a header-first row stream into p.
func consumeRows(p *rowParser, rowCh <-chan []string, errCh <-chan error) error {
	var header []string
	var headerErr error
	line := 0
	for row := range rowCh {
		line++
		// Keep draining after a bad header so the producer goroutine can exit.
		if headerErr != nil {
			continue
		}
		if header == nil {
			header = normalizeHeader(row)
			headerErr = checkHeader(header)
			continue
		}
		if blank(row) {
			continue
		}
		p.add(line, zipRow(header, row))
	}
	if err := <-errCh; err != nil {
		return err
	}
	return headerErr
}

func readJSON(ctx context.Context, path string, p *rowParser) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "open file")
	}
	defer f.Close() //nolint:errcheck

	outCh, errCh := StreamJSONArray(ctx, f)
	n := 0
	for item := range outCh {
		n++
		fields := make(map[string]string, len(item))
		for k, v := range item {
			fields[canonicalColumn(k)] = v
		}
		p.add(n, fields)
	}
	return <-errCh
}

// columnAliases maps accepted header spellings to canonical column names.
var columnAliases = map[string]string{
	"original_id": "original_id",
	"id":          "original_id",
	"record_id":   "original_id",
	"source_id":   "source_id",
	"source":      "source_id",
	"value":       "value",
	"unit":        "unit",
	"units":       "unit",
	"year":        "year",
	"metric_type": "metric_type",
	"type":        "metric_type",
	"metric":      "metric_type",
	"context":     "context",
	"text":        "context",
	"confidence":  "confidence",
}

func canonicalColumn(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if c, ok := columnAliases[key]; ok {
		return c
	}
	return key
}

func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = canonicalColumn(h)
	}
	return out
}

func checkHeader(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, c := range []string{"original_id", "value"} {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func zipRow(header, row []string) map[string]string {
	out := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			out[h] = row[i]
		}
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

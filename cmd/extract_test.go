package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metrics-cli/internal/extract"
	"github.com/sells-group/metrics-cli/internal/ingest"
	"github.com/sells-group/metrics-cli/internal/ocr"
)

func TestRunExtract_RoundTripsThroughIngest(t *testing.T) {
	input := writeInput(t, "report.txt", "In 2024, firms invested $4.5bn in AI. AI could create 97 million jobs by 2025.")
	out := filepath.Join(t.TempDir(), "records.csv")

	var buf bytes.Buffer
	err := runExtract(context.Background(), ocr.NewPdfToText(""), "rep", input, out, extract.Options{ContextChars: 240}, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Extracted 2 records")

	batch, err := ingest.ReadRecords(context.Background(), out, "rep")
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Empty(t, batch.Skipped)
	assert.Equal(t, "rep-1", batch.Records[0].OriginalID)
	assert.Equal(t, 4.5e9, batch.Records[0].Value)
	assert.Equal(t, 2024, batch.Records[0].YearValue())
}

func TestRunExtract_MissingPDFTool(t *testing.T) {
	input := writeInput(t, "report.pdf", "%PDF-1.4")
	err := runExtract(context.Background(), ocr.NewPdfToText("/nonexistent/pdftotext"), "rep", input,
		filepath.Join(t.TempDir(), "records.csv"), extract.Options{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

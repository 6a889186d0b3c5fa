// Package ocr turns source documents into plain text for extraction.
package ocr

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/metrics-cli/internal/config"
)

// Extractor extracts text content from a document.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates the PDF Extractor named by config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "text":
		return PlainText{}, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// ForPath returns PlainText for text files and pdf for everything else.
func ForPath(path string, pdf Extractor) Extractor {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".text":
		return PlainText{}
	}
	return pdf
}

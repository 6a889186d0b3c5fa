package ocr

import (
	"context"
	"os"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// PlainText reads already-extracted text files as-is.
type PlainText struct{}

// ExtractText returns the file content. Non-UTF-8 input is rejected since it
// is almost always a binary document passed by mistake.
func (PlainText) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "ocr: context cancelled")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read %s", path)
	}
	if !utf8.Valid(data) {
		return "", eris.Errorf("ocr: %s is not UTF-8 text", path)
	}
	return string(data), nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metrics-cli/internal/extract"
	"github.com/sells-group/metrics-cli/internal/ocr"
	"github.com/sells-group/metrics-cli/internal/report"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract metric records from a PDF or text report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		source, _ := cmd.Flags().GetString("source")
		input, _ := cmd.Flags().GetString("input")
		out, _ := cmd.Flags().GetString("out")

		pdf, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}
		return runExtract(ctx, pdf, source, input, out, extract.OptionsFromConfig(cfg.Extract), os.Stdout)
	},
}

func init() {
	extractCmd.Flags().String("source", "", "source id used to number records (required)")
	extractCmd.Flags().String("input", "", "PDF or text file to scan (required)")
	extractCmd.Flags().String("out", "", "CSV file to write (required)")
	_ = extractCmd.MarkFlagRequired("source")
	_ = extractCmd.MarkFlagRequired("input")
	_ = extractCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(ctx context.Context, pdf ocr.Extractor, source, input, out string, opts extract.Options, w io.Writer) error {
	text, err := ocr.ForPath(input, pdf).ExtractText(ctx, input)
	if err != nil {
		return eris.Wrap(err, "extract")
	}

	records := extract.FromText(source, text, opts)
	if err := report.WriteRecordsCSV(out, records); err != nil {
		return eris.Wrap(err, "extract")
	}

	_, _ = fmt.Fprintf(w, "Extracted %d records from %s to %s\n", len(records), input, out)
	return nil
}

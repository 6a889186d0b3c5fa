package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/pipeline"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deduplicate and classify one source's metric records",
	Long:  "Reads extracted records (CSV, TSV, JSON, XLSX) or a PDF/text report, classifies every record, and writes keep/remove/modify CSVs plus a Markdown summary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		noStore, _ := cmd.Flags().GetBool("no-store")
		env, err := initPipeline(ctx, "cleanup", !noStore)
		if err != nil {
			return err
		}
		defer env.Close()

		src, err := sourceFromFlags(cmd)
		if err != nil {
			return err
		}

		res, err := env.Pipeline.Run(ctx, src)
		if err != nil {
			return err
		}
		printRunResult(os.Stdout, res)
		return nil
	},
}

func init() {
	addSourceFlags(cleanupCmd)
	cleanupCmd.Flags().String("out-dir", "", "report directory (default <output.dir>/<source>)")
	cleanupCmd.Flags().Bool("xlsx", false, "also write a workbook with one sheet per action")
	cleanupCmd.Flags().Bool("no-store", false, "do not record the run in the store")
	rootCmd.AddCommand(cleanupCmd)
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "source id (required)")
	cmd.Flags().String("input", "", "input file (required)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("input")
}

func sourceFromFlags(cmd *cobra.Command) (pipeline.Source, error) {
	var src pipeline.Source
	src.ID, _ = cmd.Flags().GetString("source")
	src.Input, _ = cmd.Flags().GetString("input")
	if f := cmd.Flags().Lookup("out-dir"); f != nil {
		src.OutDir = f.Value.String()
	}
	if f := cmd.Flags().Lookup("xlsx"); f != nil {
		src.XLSX, _ = cmd.Flags().GetBool("xlsx")
		src.XLSX = src.XLSX || cfg.Output.XLSX
	}
	if _, err := os.Stat(src.Input); err != nil {
		return src, eris.Wrapf(err, "stat input %s", src.Input)
	}
	return src, nil
}

// printRunResult writes the action counts and report files of a run.
func printRunResult(out io.Writer, res *pipeline.Result) {
	s := res.Cleanup.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	}
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", s.SourceID)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", s.Total)
	for _, a := range model.Actions {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\t(%.1f%%)\n", a, actionCount(s, a), s.Percent(actionCount(s, a)))
	}
	_, _ = fmt.Fprintf(w, "Skipped rows:\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "Duplicate groups:\t%d\n", s.DuplicateGroups)
	_, _ = fmt.Fprintf(w, "Quality score:\t%.3f\n", s.Quality.Final)
	_ = w.Flush()

	_, _ = fmt.Fprintln(out, "Reports:")
	for _, f := range res.Files {
		_, _ = fmt.Fprintf(out, "  %s\n", f)
	}
}

func actionCount(s model.Summary, a model.Action) int {
	switch a {
	case model.ActionKeep:
		return s.Kept
	case model.ActionRemove:
		return s.Removed
	case model.ActionModify:
		return s.Modified
	}
	return 0
}

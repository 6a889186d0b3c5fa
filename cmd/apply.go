package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metrics-cli/internal/cleanup"
	"github.com/sells-group/metrics-cli/internal/pipeline"
	"github.com/sells-group/metrics-cli/internal/report"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write the cleaned dataset after a pre-flight review",
	Long:  "Classifies a source and writes the kept and modified records, with changes applied, to one CSV. Without --yes only the pre-flight summary is printed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "cleanup", false)
		if err != nil {
			return err
		}
		defer env.Close()

		src, err := sourceFromFlags(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		yes, _ := cmd.Flags().GetBool("yes")
		force, _ := cmd.Flags().GetBool("force")

		return runApply(ctx, env.Pipeline, src, applyOptions{
			Out:            out,
			Yes:            yes,
			Force:          force,
			MaxRemovalRate: cfg.Cleanup.MaxRemovalRate,
		}, os.Stdout)
	},
}

func init() {
	addSourceFlags(applyCmd)
	applyCmd.Flags().String("out", "", "cleaned CSV to write (required)")
	applyCmd.Flags().Bool("yes", false, "write the output instead of only printing the pre-flight summary")
	applyCmd.Flags().Bool("force", false, "write even when the removal rate exceeds cleanup.max_removal_rate")
	_ = applyCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(applyCmd)
}

type applyOptions struct {
	Out            string
	Yes            bool
	Force          bool
	MaxRemovalRate float64
}

// classifier is the part of the pipeline apply needs.
type classifier interface {
	Classify(ctx context.Context, src pipeline.Source) (*cleanup.Result, error)
}

func runApply(ctx context.Context, p classifier, src pipeline.Source, opts applyOptions, w io.Writer) error {
	res, err := p.Classify(ctx, src)
	if err != nil {
		return err
	}

	retained := res.Retained()
	printPreflight(w, res, len(retained), opts.Out)

	rate := res.Summary.RemovalRate
	if rate > opts.MaxRemovalRate && !opts.Force {
		return eris.Errorf("apply: removal rate %.1f%% exceeds cleanup.max_removal_rate %.1f%%; rerun with --force to write anyway",
			rate*100, opts.MaxRemovalRate*100)
	}
	if !opts.Yes {
		_, _ = fmt.Fprintln(w, "Dry run: pass --yes to write the cleaned dataset.")
		return nil
	}

	if err := report.WriteRecordsCSV(opts.Out, retained); err != nil {
		return eris.Wrap(err, "apply")
	}
	_, _ = fmt.Fprintf(w, "Wrote %d records to %s\n", len(retained), opts.Out)
	return nil
}

func printPreflight(out io.Writer, res *cleanup.Result, retained int, dest string) {
	s := res.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Pre-flight for %s\n", s.SourceID)
	_, _ = fmt.Fprintf(w, "  Records:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  Keep:\t%d\n", s.Kept)
	_, _ = fmt.Fprintf(w, "  Modify:\t%d\n", s.Modified)
	_, _ = fmt.Fprintf(w, "  Remove:\t%d\t(%.1f%%)\n", s.Removed, s.RemovalRate*100)
	_, _ = fmt.Fprintf(w, "  Skipped rows:\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "  Output:\t%d records -> %s\n", retained, dest)
	_ = w.Flush()
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metrics-cli/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Clean every source listed in a YAML manifest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, _ := cmd.Flags().GetString("manifest")
		manifest, err := pipeline.LoadManifest(path)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch", true)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := cfg.Batch.MaxConcurrentSources
		if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
			concurrency = n
		}

		res, err := pipeline.RunBatch(ctx, manifest.Sources, concurrency, env.Pipeline.Run)
		if err != nil {
			return err
		}

		printBatchResult(os.Stdout, res)
		if res.Failed > 0 {
			return eris.Errorf("batch: %d of %d sources failed", res.Failed, len(manifest.Sources))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().String("manifest", "sources.yaml", "YAML manifest listing the sources")
	batchCmd.Flags().Int("concurrency", 0, "sources processed at once (default batch.max_concurrent_sources)")
	rootCmd.AddCommand(batchCmd)
}

// printBatchResult writes one line per source, sorted by id.
func printBatchResult(out io.Writer, res *pipeline.BatchResult) {
	ids := make([]string, 0, len(res.Results)+len(res.Errors))
	for id := range res.Results {
		ids = append(ids, id)
	}
	for id := range res.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tSTATUS\tRECORDS\tREMOVED\tQUALITY\tRUN")
	_, _ = fmt.Fprintln(w, "------\t------\t-------\t-------\t-------\t---")
	for _, id := range ids {
		if err, ok := res.Errors[id]; ok {
			_, _ = fmt.Fprintf(w, "%s\tfailed\t\t\t\t%s\n", id, truncate(err.Error(), 60))
			continue
		}
		r := res.Results[id]
		s := r.Cleanup.Summary
		_, _ = fmt.Fprintf(w, "%s\tcomplete\t%d\t%d\t%.3f\t%s\n", id, s.Total, s.Removed, s.Quality.Final, truncateID(r.RunID))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d succeeded, %d failed\n", res.Succeeded, res.Failed)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metrics-cli/internal/model"
	"github.com/sells-group/metrics-cli/internal/monitoring"
	"github.com/sells-group/metrics-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect cleanup run history",
	Long:  "Commands for listing, viewing, and summarizing cleanup runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cleanup runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:   model.RunStatus(status),
			SourceID: source,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		out := runDetail{Run: run}
		if withDecisions, _ := cmd.Flags().GetBool("decisions"); withDecisions {
			action, _ := cmd.Flags().GetString("action")
			out.Decisions, err = st.ListDecisions(ctx, run.ID, model.Action(action))
			if err != nil {
				return eris.Wrap(err, "runs show")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// runDetail is the JSON shape printed by runs show.
type runDetail struct {
	*model.Run
	Decisions []model.Decision `json:"decisions,omitempty"`
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := monitoring.NewCollector(st).Collect(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	runsListCmd.Flags().String("source", "", "filter by source id")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("decisions", false, "include the run's decisions")
	runsShowCmd.Flags().String("action", "", "with --decisions, only this action (keep, remove, modify)")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h); 0 for all time")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tRECORDS\tREMOVED\tQUALITY\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t-------\t-------\t-------\t--------")

	for _, r := range runs {
		records, removed, quality := "", "", ""
		if r.Summary != nil {
			records = fmt.Sprintf("%d", r.Summary.Total)
			removed = fmt.Sprintf("%.1f%%", r.Summary.RemovalRate*100)
			quality = fmt.Sprintf("%.3f", r.Summary.Quality.Final)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			truncate(r.SourceID, 30),
			r.Status,
			records,
			removed,
			quality,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if s.LookbackHours > 0 {
		_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", s.LookbackHours)
	} else {
		_, _ = fmt.Fprintln(w, "Window:\tall time")
	}
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.RunsTotal)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.RunsComplete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\t(%.1f%%)\n", s.RunsFailed, s.FailRate*100)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.RunsActive)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", s.Records)
	_, _ = fmt.Fprintf(w, "  Kept:\t%d\n", s.Kept)
	_, _ = fmt.Fprintf(w, "  Removed:\t%d\n", s.Removed)
	_, _ = fmt.Fprintf(w, "  Modified:\t%d\n", s.Modified)
	_, _ = fmt.Fprintf(w, "Skipped rows:\t%d\n", s.Skipped)
	if s.RunsComplete > 0 {
		_, _ = fmt.Fprintf(w, "Avg removal rate:\t%.1f%%\n", s.AvgRemovalRate*100)
		_, _ = fmt.Fprintf(w, "Avg quality:\t%.3f\n", s.AvgQuality)
		_, _ = fmt.Fprintf(w, "Lowest quality:\t%.3f\t(%s)\n", s.LowestQuality, s.LowestQualitySource)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/metrics-cli/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Clean record files as they are dropped into a directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "cleanup", true)
		if err != nil {
			return err
		}
		defer env.Close()

		dir, _ := cmd.Flags().GetString("dir")
		outDir, _ := cmd.Flags().GetString("out-dir")
		if outDir == "" {
			outDir = cfg.Output.Dir
		}
		xlsx, _ := cmd.Flags().GetBool("xlsx")
		backfill, _ := cmd.Flags().GetBool("backfill")

		w := pipeline.NewWatcher(dir, outDir, xlsx || cfg.Output.XLSX, env.Pipeline.Run)
		if backfill {
			if err := w.Backfill(ctx); err != nil {
				return err
			}
		}

		err = w.Watch(ctx)
		zap.L().Info("watch stopped")
		return err
	},
}

func init() {
	watchCmd.Flags().String("dir", "inbox", "directory to watch")
	watchCmd.Flags().String("out-dir", "", "report root; each file gets <out-dir>/<stem> (default output.dir)")
	watchCmd.Flags().Bool("xlsx", false, "also write a workbook per file")
	watchCmd.Flags().Bool("backfill", false, "process files already in the directory before watching")
	rootCmd.AddCommand(watchCmd)
}

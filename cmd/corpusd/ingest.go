package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	watchMode     bool
	watchDebounce time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the corpus into the vector index",
	Long: `Walk the configured corpus directory, chunk every supported document,
embed the chunks that changed, and remove index entries for chunks that
no longer exist.

Examples:
  # One-shot ingestion
  corpusd ingest

  # Keep re-ingesting as files change
  corpusd ingest --watch`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&watchMode, "watch", false, "re-ingest when corpus files change")
	ingestCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before a watched re-ingest (default 2s)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	report, err := app.ingester.Run(ctx)
	if err != nil {
		return err
	}
	printReport(report)

	if !watchMode {
		return nil
	}

	err = app.ingester.Watch(ctx, watchDebounce)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

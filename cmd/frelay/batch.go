package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franksops/filerelay/provider"
	"github.com/franksops/filerelay/relay"
	"github.com/franksops/filerelay/ui"
)

var batchFlags struct {
	manifest string
	dir      string
	s3       string
	report   string
	tui      bool
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Relay many files concurrently",
	Long: `Relays every file of a CSV manifest, a local directory or an S3 prefix.
Each file is relayed once; failures are reported, not retried.

A manifest has a header row naming some of handle, filename, size and kind.
Only handle is required.`,
	Example: `  frelay batch --manifest files.csv --report results.csv
  frelay batch --dir ./outbox --workers 8 --tui
  frelay batch --s3 media/incoming`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		produce, expected, err := batchProducer()
		if err != nil {
			return err
		}

		var tracker *ui.Tracker
		var observers []relay.Observer
		if batchFlags.tui {
			tracker = ui.NewTracker(expected, cfg.Workers)
			observers = append(observers, tracker)
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{localFiles: true, observers: observers})
		if err != nil {
			return err
		}
		defer a.Close()

		if batchFlags.s3 != "" {
			if a.s3 == nil {
				return errors.New("--s3 needs AWS credentials in the environment")
			}
			produce = relay.WalkProducer(a.s3, batchFlags.s3)
		}

		var report *relay.Report
		if batchFlags.report != "" {
			f, err := os.Create(batchFlags.report)
			if err != nil {
				return fmt.Errorf("creating report: %w", err)
			}
			defer f.Close()
			report = relay.NewReport(f)
		}

		batch := relay.NewBatch(a.orchestrator, cfg.Workers, report)
		var summary relay.Summary
		run := func(ctx context.Context) error {
			var runErr error
			_, summary, runErr = batch.Run(ctx, produce)
			return runErr
		}
		if tracker != nil {
			err = runWithTUI(cmd.Context(), tracker, run)
		} else {
			err = run(cmd.Context())
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d relayed, %d without link, %d failed, %s transferred\n",
			summary.Succeeded, summary.SucceededNoURL, summary.Failed, humanize.IBytes(uint64(summary.Bytes)))
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d relays failed", summary.Failed, summary.Total)
		}
		return nil
	},
}

// batchProducer returns the producer the flags select and the number of
// files when it is known up front. The S3 producer needs the app and is
// built later.
func batchProducer() (relay.Producer, int, error) {
	set := 0
	for _, s := range []string{batchFlags.manifest, batchFlags.dir, batchFlags.s3} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return nil, 0, errors.New("exactly one of --manifest, --dir or --s3 is required")
	}

	switch {
	case batchFlags.manifest != "":
		f, err := os.Open(batchFlags.manifest)
		if err != nil {
			return nil, 0, err
		}
		defer f.Close()
		refs, err := relay.ReadManifest(f)
		if err != nil {
			return nil, 0, err
		}
		return relay.RefsProducer(refs), len(refs), nil
	case batchFlags.dir != "":
		root, err := filepath.Abs(batchFlags.dir)
		if err != nil {
			return nil, 0, err
		}
		return relay.WalkProducer(provider.NewLocalSource(""), filepath.ToSlash(root)), 0, nil
	}
	return nil, 0, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFlags.manifest, "manifest", "", "CSV manifest of files to relay")
	batchCmd.Flags().StringVar(&batchFlags.dir, "dir", "", "relay every file under this directory")
	batchCmd.Flags().StringVar(&batchFlags.s3, "s3", "", "relay every object under this bucket/prefix")
	batchCmd.Flags().StringVar(&batchFlags.report, "report", "", "write a CSV row per relay to this file")
	batchCmd.Flags().BoolVar(&batchFlags.tui, "tui", false, "show a progress view")
	rootCmd.AddCommand(batchCmd)
}

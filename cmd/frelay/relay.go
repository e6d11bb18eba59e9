package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/relay"
	"github.com/franksops/filerelay/reply"
	"github.com/franksops/filerelay/ui"
)

var relayFlags struct {
	filename string
	size     string
	kind     string
	tui      bool
}

var relayCmd = &cobra.Command{
	Use:   "relay <handle>",
	Short: "Relay one file and print its download link",
	Example: `  frelay relay https://example.com/report.pdf
  frelay relay tg:BQACAgIAAxkBAAIB --kind video --size 48MB
  frelay relay s3://media/in/photo.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var size uint64
		if relayFlags.size != "" {
			var err error
			if size, err = humanize.ParseBytes(relayFlags.size); err != nil {
				return fmt.Errorf("invalid --size: %w", err)
			}
		}
		ref := engine.FileReference{
			Handle:       args[0],
			Filename:     relayFlags.filename,
			DeclaredSize: int64(size),
			Kind:         engine.ParseMediaKind(relayFlags.kind),
		}

		var tracker *ui.Tracker
		var observers []relay.Observer
		if relayFlags.tui {
			tracker = ui.NewTracker(1, 1)
			observers = append(observers, tracker)
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{localFiles: true, observers: observers})
		if err != nil {
			return err
		}
		defer a.Close()

		var res relay.Result
		run := func(ctx context.Context) error {
			var relayErr error
			res, relayErr = a.orchestrator.Relay(ctx, ref)
			return relayErr
		}
		if tracker != nil {
			err = runWithTUI(cmd.Context(), tracker, run)
		} else {
			err = run(cmd.Context())
		}

		fmt.Fprintln(cmd.OutOrStdout(), reply.Text(res))
		return err
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayFlags.filename, "filename", "", "filename sent to the destination")
	relayCmd.Flags().StringVar(&relayFlags.size, "size", "", "declared size, checked against the size limit before fetching")
	relayCmd.Flags().StringVar(&relayFlags.kind, "kind", "document", "media kind choosing the default filename: document, video, photo, audio, voice")
	relayCmd.Flags().BoolVar(&relayFlags.tui, "tui", false, "show a progress view")
	rootCmd.AddCommand(relayCmd)
}

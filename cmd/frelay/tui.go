package main

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/filerelay/ui"
)

const tuiRefresh = 250 * time.Millisecond

// runWithTUI runs fn while a progress view renders tracker. Quitting the
// view cancels fn.
func runWithTUI(ctx context.Context, tracker *ui.Tracker, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewTUIModel(tracker.Snapshot()), tea.WithAltScreen(), tea.WithContext(ctx))

	watchCtx, stopWatch := context.WithCancel(context.Background())
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		ui.Watch(watchCtx, p, tracker, tuiRefresh)
	}()

	errc := make(chan error, 1)
	go func() {
		err := fn(ctx)
		tracker.MarkDone()
		stopWatch()
		errc <- err
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Warnw("progress view failed", "err", err)
	}
	// the user quit early
	cancel()
	stopWatch()
	<-watched
	return <-errc
}

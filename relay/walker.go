package relay

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/provider"
)

// Walker traverses a source tree iteratively and pushes one RelayJob per
// file to a channel. It avoids deep recursion to prevent stack overflows on
// very deep directory structures.
type Walker struct {
	Source  provider.Lister
	JobChan engine.JobChannel
}

// NewWalker creates a new iterative walker.
func NewWalker(src provider.Lister, jobChan engine.JobChannel) *Walker {
	return &Walker{
		Source:  src,
		JobChan: jobChan,
	}
}

// Walk starts an iterative (stack-based) walk of root. A root that is a file
// yields a single job.
func (w *Walker) Walk(ctx context.Context, root string) error {
	stat, err := w.Source.Stat(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", root, err)
	}

	if !stat.IsDir() {
		return w.emit(ctx, root, stat)
	}

	stack := []string{root}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := w.Source.List(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to list directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			p := path.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, p)
				continue
			}
			if err := w.emit(ctx, p, entry); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *Walker) emit(ctx context.Context, p string, info provider.FileInfo) error {
	job := engine.RelayJob{
		ID: uuid.NewString(),
		Ref: engine.FileReference{
			Handle:       w.Source.Handle(p),
			Filename:     info.Name(),
			DeclaredSize: info.Size(),
			Kind:         engine.KindDocument,
		},
		Ctx: ctx,
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.JobChan <- job:
		return nil
	}
}

package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/provider"
)

// Producer queues jobs on ch and returns when it has no more.
type Producer func(ctx context.Context, ch engine.JobChannel) error

// Summary counts the results of a batch.
type Summary struct {
	Total          int
	Succeeded      int
	SucceededNoURL int
	Failed         int
	Bytes          int64
}

func (s *Summary) add(res Result) {
	s.Total++
	s.Bytes += res.BytesTransferred
	switch res.Status {
	case StatusSuccess:
		s.Succeeded++
	case StatusSuccessNoURL:
		s.SucceededNoURL++
	default:
		s.Failed++
	}
}

// Batch relays many files concurrently through an engine.WorkerPool.
// Every relay is still a single attempt.
type Batch struct {
	relayer Relayer
	workers int
	report  *Report
}

// NewBatch creates a Batch running at most workers relays at once. report may be nil.
func NewBatch(relayer Relayer, workers int, report *Report) *Batch {
	if workers < 1 {
		workers = 1
	}
	return &Batch{relayer: relayer, workers: workers, report: report}
}

// Run relays every job produce queues and returns once all of them finished.
// A producer error stops queueing but lets queued relays finish.
func (b *Batch) Run(ctx context.Context, produce Producer) ([]Result, Summary, error) {
	jobs := make(engine.JobChannel, b.workers)

	var mu sync.Mutex
	var results []Result
	var summary Summary

	pool := engine.NewWorkerPool(ctx, jobs, func(ctx context.Context, job engine.RelayJob) error {
		res, err := b.relayer.Relay(ctx, job.Ref)
		if b.report != nil {
			if rerr := b.report.Append(res); rerr != nil {
				log.Errorw("writing report row", "id", res.ID, "err", rerr)
			}
		}

		mu.Lock()
		results = append(results, res)
		summary.add(res)
		mu.Unlock()
		return err
	})
	pool.SetWorkerCount(b.workers)

	produceErr := produce(ctx, jobs)
	close(jobs)
	pool.Wait()
	pool.Stop()

	if b.report != nil {
		if err := b.report.Flush(); err != nil {
			log.Errorw("flushing report", "err", err)
		}
	}

	log.Infow("batch finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"no_url", summary.SucceededNoURL,
		"failed", summary.Failed,
		"bytes", summary.Bytes,
	)
	return results, summary, produceErr
}

// RefsProducer queues refs in order.
func RefsProducer(refs []engine.FileReference) Producer {
	return func(ctx context.Context, ch engine.JobChannel) error {
		for _, ref := range refs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- engine.RelayJob{ID: uuid.NewString(), Ref: ref, Ctx: ctx}:
			}
		}
		return nil
	}
}

// WalkProducer queues every file under root in src.
func WalkProducer(src provider.Lister, root string) Producer {
	return func(ctx context.Context, ch engine.JobChannel) error {
		return NewWalker(src, ch).Walk(ctx, root)
	}
}

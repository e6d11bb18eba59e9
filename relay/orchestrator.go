package relay

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/franksops/filerelay/engine"
)

var log = logging.Logger("relay")

// Fetcher opens the source stream of a file handle.
type Fetcher interface {
	Open(ctx context.Context, handle string) (engine.ReadChannel, int64, error)
}

// Uploader streams a source channel to the destination.
type Uploader interface {
	Stream(ctx context.Context, rc engine.ReadChannel, filename, destinationURL string, opts ...engine.StreamOption) (*engine.Transfer, error)
}

// Interpreter turns the destination's response into an outcome.
type Interpreter interface {
	Interpret(status int, body []byte) engine.UploadOutcome
}

// Relayer relays one file. Orchestrator is the implementation; hosts depend
// on this interface.
type Relayer interface {
	Relay(ctx context.Context, ref engine.FileReference) (Result, error)
}

// Config wires an Orchestrator.
type Config struct {
	Fetcher     Fetcher
	Uploader    Uploader
	Interpreter Interpreter

	// UploadURL is the multipart endpoint every file is posted to.
	UploadURL string

	// SizeLimit is checked against declared and reported sizes. Zero disables it.
	SizeLimit int64

	// Observer receives relay events. Nil means no observer.
	Observer Observer
}

// Orchestrator runs relays: size check, fetch, stream, interpret.
// Relays share no mutable state, so one Orchestrator serves many goroutines.
type Orchestrator struct {
	fetcher     Fetcher
	uploader    Uploader
	interpreter Interpreter
	uploadURL   string
	limit       int64
	observer    Observer

	now func() time.Time
}

var _ Relayer = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator from cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &Orchestrator{
		fetcher:     cfg.Fetcher,
		uploader:    cfg.Uploader,
		interpreter: cfg.Interpreter,
		uploadURL:   cfg.UploadURL,
		limit:       cfg.SizeLimit,
		observer:    observer,
		now:         time.Now,
	}
}

// Relay transfers the file ref names to the destination and returns the
// outcome. Two calls with the same ref perform two independent transfers.
//
// The error is nil for StatusSuccess and StatusSuccessNoURL, and equals
// Result.Err otherwise. The source and the upload request are released
// before Relay returns.
func (o *Orchestrator) Relay(ctx context.Context, ref engine.FileReference) (Result, error) {
	r := &run{
		o:   o,
		res: Result{ID: uuid.NewString(), Ref: ref, Started: o.now()},
	}
	o.observer.RelayStarted(r.res.ID, ref)
	o.observer.StateChanged(r.res.ID, StateIdle)

	if err := engine.CheckSize(ref.DeclaredSize, o.limit); err != nil {
		return r.fail(err)
	}
	r.enter(StateSizeChecked)

	if ctx.Err() != nil {
		return r.fail(engine.Canceled(ctx))
	}
	r.enter(StateFetching)
	rc, size, err := o.fetcher.Open(ctx, ref.Handle)
	if err != nil {
		return r.fail(err)
	}
	// the source may know better than the sender
	if err := engine.CheckSize(size, o.limit); err != nil {
		rc.Close()
		return r.fail(err)
	}

	r.enter(StateStreaming)
	tr, err := o.uploader.Stream(ctx, rc, ref.DisplayName(), o.uploadURL,
		engine.WithProgress(func(read, written int64) {
			o.observer.Progress(r.res.ID, read, written)
		}))
	if tr != nil {
		r.res.BytesTransferred = tr.BytesWritten
		r.res.Checksum = tr.Checksum
	}
	if err != nil {
		return r.fail(err)
	}
	if tr == nil || tr.Response == nil {
		return r.fail(errors.New("upload finished without a response"))
	}

	r.enter(StateInterpreting)
	outcome := o.interpreter.Interpret(tr.Response.StatusCode, tr.Response.Body)
	switch outcome.Kind {
	case engine.OutcomeSuccess:
		r.res.Status = StatusSuccess
		r.res.DownloadURL = outcome.URL
	case engine.OutcomeSuccessNoURL:
		r.res.Status = StatusSuccessNoURL
	default:
		return r.fail(&engine.RejectedError{StatusCode: outcome.StatusCode, Body: outcome.Body})
	}
	return r.done()
}

// run is the state of one Relay call.
type run struct {
	o   *Orchestrator
	res Result
}

func (r *run) enter(state State) {
	log.Debugw("relay state", "id", r.res.ID, "state", state)
	r.o.observer.StateChanged(r.res.ID, state)
}

func (r *run) fail(err error) (Result, error) {
	r.res.Status = StatusFailed
	r.res.Err = err
	r.finish()
	log.Warnw("relay failed",
		"id", r.res.ID,
		"handle", redactHandle(r.res.Ref.Handle),
		"kind", engine.Classify(err),
		"bytes", r.res.BytesTransferred,
		"duration", r.res.Duration(),
		"err", err,
	)
	return r.res, err
}

func (r *run) done() (Result, error) {
	r.finish()
	log.Infow("relay finished",
		"id", r.res.ID,
		"handle", redactHandle(r.res.Ref.Handle),
		"status", r.res.Status,
		"bytes", r.res.BytesTransferred,
		"checksum", r.res.Checksum,
		"duration", r.res.Duration(),
	)
	return r.res, nil
}

func (r *run) finish() {
	r.res.Ended = r.o.now()
	r.enter(StateDone)
	r.o.observer.RelayFinished(r.res)
}

// redactHandle drops credentials and query strings, which presigned URLs
// use for signatures.
func redactHandle(handle string) string {
	u, err := url.Parse(handle)
	if err != nil || (u.RawQuery == "" && u.User == nil) {
		return handle
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

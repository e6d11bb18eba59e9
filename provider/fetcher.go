package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/franksops/filerelay/engine"
)

var errOpenTimeout = errors.New("source open timed out")

// Fetcher opens a ReadChannel for a handle by dispatching on its scheme.
// It is safe for concurrent use.
type Fetcher struct {
	mu      sync.RWMutex
	sources map[string]Source

	openTimeout time.Duration
	readTimeout time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithOpenTimeout bounds how long a source may take to start streaming.
func WithOpenTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.openTimeout = d }
}

// WithReadTimeout bounds every single chunk read.
func WithReadTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.readTimeout = d }
}

// NewFetcher creates a Fetcher with no sources registered.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{sources: make(map[string]Source)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register routes handles with the given scheme to src.
func (f *Fetcher) Register(scheme string, src Source) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[strings.ToLower(scheme)] = src
	return f
}

// Schemes returns the registered schemes.
func (f *Fetcher) Schemes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	schemes := make([]string, 0, len(f.sources))
	for s := range f.sources {
		schemes = append(schemes, s)
	}
	return schemes
}

// SchemeOf returns the lower-cased scheme of handle, or "" if it has none.
func SchemeOf(handle string) string {
	scheme, _, ok := strings.Cut(handle, ":")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// Open starts streaming the file named by handle. The returned size is the
// size the source reports, or zero when unknown.
//
// The channel stays bound to ctx: cancelling ctx aborts reads in flight.
func (f *Fetcher) Open(ctx context.Context, handle string) (engine.ReadChannel, int64, error) {
	scheme := SchemeOf(handle)
	f.mu.RLock()
	src, ok := f.sources[scheme]
	f.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: no source for scheme %q", engine.ErrSourceUnavailable, scheme)
	}

	// The open deadline must not outlive Open: the stream keeps using srcCtx.
	srcCtx, cancel := context.WithCancelCause(ctx)
	var timer *time.Timer
	if f.openTimeout > 0 {
		timer = time.AfterFunc(f.openTimeout, func() { cancel(errOpenTimeout) })
	}

	body, size, err := src.Open(srcCtx, handle)
	if timer != nil && !timer.Stop() {
		if err == nil {
			body.Close()
		}
		cancel(nil)
		if ctx.Err() != nil {
			return nil, 0, engine.Canceled(ctx)
		}
		return nil, 0, fmt.Errorf("%w: no response within %s", engine.ErrSourceUnavailable, f.openTimeout)
	}
	if err != nil {
		cancel(nil)
		if ctx.Err() != nil {
			return nil, 0, engine.Canceled(ctx)
		}
		if errors.Is(err, engine.ErrSourceUnavailable) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %w", engine.ErrSourceUnavailable, err)
	}

	log.Debugw("source opened", "scheme", scheme, "size", size)
	ch := NewChunkChannel(body, f.readTimeout).OnClose(func() { cancel(nil) })
	return ch, size, nil
}

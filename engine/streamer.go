package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultFieldName is the multipart field carrying the file.
	DefaultFieldName = "file"

	// DefaultResponseLimit caps how much of the destination's answer is kept.
	DefaultResponseLimit = 1 << 20
)

var (
	errStalled        = errors.New("upload made no progress")
	errUploadDeadline = errors.New("upload deadline exceeded")
	errBodyDone       = errors.New("upload request finished")
)

// abortError marks a pump exit caused by the upload side going away. The
// HTTP client's own error describes what happened.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return "upload aborted: " + e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// StreamerConfig configures a Streamer.
type StreamerConfig struct {
	// Client performs the upload. If nil, a client with ConnectTimeout is built.
	Client *http.Client

	// Headers are added to every upload request.
	Headers map[string]string

	// FieldName overrides DefaultFieldName.
	FieldName string

	// SizeLimit aborts a transfer once more than this many bytes were read. Zero disables it.
	SizeLimit int64

	// ChunkSize is the size of the buffer source chunks are read into.
	ChunkSize int

	// ConnectTimeout bounds dialing the destination when Client is nil.
	ConnectTimeout time.Duration

	// UploadTimeout bounds the whole upload request, response included.
	UploadTimeout time.Duration

	// IdleTimeout aborts the upload when no chunk was forwarded for this long.
	IdleTimeout time.Duration

	// ResponseLimit overrides DefaultResponseLimit.
	ResponseLimit int64
}

// RawResponse is the destination's answer before interpretation.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transfer summarizes one Stream call.
type Transfer struct {
	BytesRead    int64
	BytesWritten int64
	Checksum     uint64

	// Response is nil unless the destination answered.
	Response *RawResponse
}

// StreamOption tunes a single Stream call.
type StreamOption func(*streamOptions)

type streamOptions struct {
	progress ProgressFunc
}

// WithProgress reports byte counters after every forwarded chunk.
func WithProgress(fn ProgressFunc) StreamOption {
	return func(o *streamOptions) {
		o.progress = fn
	}
}

// Streamer pipes a ReadChannel into a multipart/form-data upload without
// holding more than one chunk in memory. A Streamer is safe for concurrent
// use; every Stream call owns its own progress and request.
type Streamer struct {
	client        *http.Client
	headers       http.Header
	fieldName     string
	limit         int64
	uploadTimeout time.Duration
	idleTimeout   time.Duration
	responseLimit int64
	buffers       *BufferPool
}

// NewStreamer creates a Streamer from cfg.
func NewStreamer(cfg StreamerConfig) *Streamer {
	client := cfg.Client
	if client == nil {
		client = newUploadClient(cfg.ConnectTimeout)
	}
	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	fieldName := cfg.FieldName
	if fieldName == "" {
		fieldName = DefaultFieldName
	}
	responseLimit := cfg.ResponseLimit
	if responseLimit <= 0 {
		responseLimit = DefaultResponseLimit
	}
	return &Streamer{
		client:        client,
		headers:       headers,
		fieldName:     fieldName,
		limit:         cfg.SizeLimit,
		uploadTimeout: cfg.UploadTimeout,
		idleTimeout:   cfg.IdleTimeout,
		responseLimit: responseLimit,
		buffers:       NewBufferPool(cfg.ChunkSize),
	}
}

func newUploadClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if connectTimeout > 0 {
		dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
		transport.DialContext = dialer.DialContext
		transport.TLSHandshakeTimeout = connectTimeout
	}
	return &http.Client{Transport: transport}
}

// Stream uploads the chunks of rc to destinationURL as the multipart field
// holding filename. Chunk N is forwarded before chunk N+1 is read. rc is
// closed before Stream returns, whatever the outcome.
//
// The returned Transfer is never nil; on error it holds the counters reached
// before the failure.
func (s *Streamer) Stream(ctx context.Context, rc ReadChannel, filename, destinationURL string, opts ...StreamOption) (*Transfer, error) {
	defer rc.Close()

	var o streamOptions
	for _, opt := range opts {
		opt(&o)
	}

	if ctx.Err() != nil {
		return &Transfer{}, Canceled(ctx)
	}

	upCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if s.uploadTimeout > 0 {
		var stop context.CancelFunc
		upCtx, stop = context.WithTimeoutCause(upCtx, s.uploadTimeout, errUploadDeadline)
		defer stop()
	}
	// A pump blocked on a source read only wakes up once the source is closed.
	stopClosing := context.AfterFunc(upCtx, func() { _ = rc.Close() })
	defer stopClosing()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	progress := newTransferProgress(o.progress)

	req, err := http.NewRequestWithContext(upCtx, http.MethodPost, destinationURL, pr)
	if err != nil {
		return &Transfer{}, fmt.Errorf("%w: building request: %w", ErrDestinationUnreachable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, vs := range s.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	watchdog := newStallWatchdog(s.idleTimeout, func() { cancel(errStalled) })
	defer watchdog.stop()

	done := make(chan error, 1)
	go func() {
		err := s.pump(upCtx, rc, mw, filename, progress, watchdog)
		var aborted *abortError
		if err != nil && !errors.As(err, &aborted) {
			cancel(err)
		}
		if err != nil {
			pw.CloseWithError(err)
		} else {
			pw.Close()
		}
		done <- err
	}()

	resp, doErr := s.client.Do(req)
	// The destination may answer before draining the body.
	pr.CloseWithError(errBodyDone)

	var (
		raw     *RawResponse
		readErr error
	)
	if doErr == nil {
		raw, readErr = s.readResponse(resp)
	}
	cancel(errBodyDone)
	pumpErr := <-done

	transfer := &Transfer{
		BytesRead:    progress.BytesRead,
		BytesWritten: progress.BytesWritten,
		Checksum:     progress.Checksum(),
		Response:     raw,
	}

	var aborted *abortError
	if pumpErr != nil && !errors.As(pumpErr, &aborted) {
		return transfer, pumpErr
	}
	if doErr != nil {
		return transfer, s.classify(ctx, upCtx, doErr)
	}
	if readErr != nil {
		return transfer, s.classify(ctx, upCtx, readErr)
	}
	return transfer, nil
}

func (s *Streamer) pump(ctx context.Context, rc ReadChannel, mw *multipart.Writer, filename string, progress *TransferProgress, watchdog *stallWatchdog) error {
	part, err := mw.CreateFormFile(s.fieldName, filename)
	if err != nil {
		return &abortError{err}
	}

	bufp := s.buffers.Get()
	defer s.buffers.Put(bufp)
	buf := *bufp

	for {
		n, more, err := rc.Next(buf)
		if n > 0 {
			if total := progress.addRead(n); s.limit > 0 && total > s.limit {
				return &SizeExceededError{Size: total, Limit: s.limit, Observed: true}
			}
			if _, werr := part.Write(buf[:n]); werr != nil {
				return &abortError{werr}
			}
			progress.addWritten(buf[:n])
			watchdog.touch()
		}
		if err != nil {
			if ctx.Err() != nil {
				return &abortError{context.Cause(ctx)}
			}
			return fmt.Errorf("%w: %w", ErrSourceReadFailed, err)
		}
		if !more {
			break
		}
	}

	// The body is complete; waiting for the answer is bounded by UploadTimeout only.
	watchdog.stop()
	if err := mw.Close(); err != nil {
		return &abortError{err}
	}
	return nil
}

// readResponse keeps whatever arrived even when the read fails. Stopping at
// the response limit is not an error.
func (s *Streamer) readResponse(resp *http.Response) (*RawResponse, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.responseLimit))
	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, err
}

func (s *Streamer) classify(ctx, upCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return Canceled(ctx)
	}
	switch cause := context.Cause(upCtx); {
	case errors.Is(cause, errStalled):
		return fmt.Errorf("%w: no progress for %s", ErrDestinationTimeout, s.idleTimeout)
	case errors.Is(cause, errUploadDeadline):
		return fmt.Errorf("%w: upload took longer than %s", ErrDestinationTimeout, s.uploadTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrDestinationTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrDestinationUnreachable, err)
}

// stallWatchdog fires once no progress was reported for its whole interval.
type stallWatchdog struct {
	d     time.Duration
	timer *time.Timer
}

func newStallWatchdog(d time.Duration, onStall func()) *stallWatchdog {
	if d <= 0 {
		return &stallWatchdog{}
	}
	return &stallWatchdog{d: d, timer: time.AfterFunc(d, onStall)}
}

func (w *stallWatchdog) touch() {
	if w.timer != nil {
		w.timer.Reset(w.d)
	}
}

func (w *stallWatchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

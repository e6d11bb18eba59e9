package relay_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/provider"
	"github.com/franksops/filerelay/relay"
)

// recordingObserver keeps every event it sees.
type recordingObserver struct {
	mu       sync.Mutex
	states   []relay.State
	progress int
	finished []relay.Result
}

func (o *recordingObserver) RelayStarted(string, engine.FileReference) {}

func (o *recordingObserver) StateChanged(_ string, s relay.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) Progress(string, int64, int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress++
}

func (o *recordingObserver) RelayFinished(res relay.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, res)
}

// sizedSource serves size bytes of a fixed pattern over HTTP.
func sizedSource(t *testing.T, size int) *httptest.Server {
	t.Helper()
	payload := bytes.Repeat([]byte{0xAB}, size)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// destination drains the multipart body and answers with status and reply.
func destination(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := io.Copy(io.Discard, part); err != nil {
			return
		}
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOrchestrator(uploadURL string, limit int64, observer relay.Observer) *relay.Orchestrator {
	fetcher := provider.NewFetcher(provider.WithReadTimeout(5*time.Second)).
		Register("http", provider.NewHTTPSource(nil))
	return relay.NewOrchestrator(relay.Config{
		Fetcher:     fetcher,
		Uploader:    engine.NewStreamer(engine.StreamerConfig{SizeLimit: limit}),
		Interpreter: engine.NewResponseInterpreter("https://files.vc/d/dl?hash="),
		UploadURL:   uploadURL,
		SizeLimit:   limit,
		Observer:    observer,
	})
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	const size = 10 * 1024 * 1024
	src := sizedSource(t, size)
	dst := destination(t, http.StatusOK, `{"file_url":"https://dest/x"}`)
	observer := &recordingObserver{}

	o := newOrchestrator(dst.URL, 50*1024*1024, observer)
	res, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL + "/file", DeclaredSize: size, Filename: "big.bin"})
	require.NoError(t, err)

	require.Equal(t, relay.StatusSuccess, res.Status)
	require.Equal(t, "https://dest/x", res.DownloadURL)
	require.Equal(t, int64(size), res.BytesTransferred)
	require.Equal(t, engine.Checksum(bytes.Repeat([]byte{0xAB}, size)), res.Checksum)
	require.NotEmpty(t, res.ID)
	require.False(t, res.Ended.Before(res.Started))

	require.Equal(t, []relay.State{
		relay.StateIdle, relay.StateSizeChecked, relay.StateFetching,
		relay.StateStreaming, relay.StateInterpreting, relay.StateDone,
	}, observer.states)
	require.Positive(t, observer.progress)
	require.Len(t, observer.finished, 1)
}

func TestOrchestrator_DeclaredSizeOverLimit(t *testing.T) {
	opened := false
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opened = true
	}))
	defer src.Close()
	observer := &recordingObserver{}

	o := newOrchestrator("http://127.0.0.1:1/upload", 1024, observer)
	res, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL, DeclaredSize: 2048})

	var sizeErr *engine.SizeExceededError
	require.ErrorAs(t, err, &sizeErr)
	require.False(t, sizeErr.Observed)
	require.Equal(t, relay.StatusFailed, res.Status)
	require.Equal(t, engine.KindSizeExceeded, res.Kind())
	require.False(t, opened, "the source must not be contacted")
	require.Equal(t, []relay.State{relay.StateIdle, relay.StateDone}, observer.states)
}

func TestOrchestrator_ReportedSizeOverLimit(t *testing.T) {
	src := sizedSource(t, 4096)

	o := newOrchestrator("http://127.0.0.1:1/upload", 1024, nil)
	_, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL})
	require.ErrorIs(t, err, engine.ErrSizeExceeded)
}

func TestOrchestrator_UnknownSizeCappedDuringTransfer(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush() // chunked, no Content-Length
		w.Write(make([]byte, 64*1024))
	}))
	defer src.Close()
	dst := destination(t, http.StatusOK, `{}`)

	o := newOrchestrator(dst.URL, 16*1024, nil)
	res, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL})

	var sizeErr *engine.SizeExceededError
	require.ErrorAs(t, err, &sizeErr)
	require.True(t, sizeErr.Observed)
	require.LessOrEqual(t, res.BytesTransferred, int64(16*1024))
}

func TestOrchestrator_Rejected(t *testing.T) {
	src := sizedSource(t, 100)
	dst := destination(t, http.StatusNotFound, "not found")

	o := newOrchestrator(dst.URL, 0, nil)
	res, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL})

	var rejected *engine.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, 404, rejected.StatusCode)
	require.Equal(t, "not found", rejected.Body)
	require.Equal(t, relay.StatusFailed, res.Status)
	require.Equal(t, int64(100), res.BytesTransferred)
}

func TestOrchestrator_SuccessWithoutURL(t *testing.T) {
	src := sizedSource(t, 100)
	dst := destination(t, http.StatusOK, "")

	o := newOrchestrator(dst.URL, 0, nil)
	res, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL})
	require.NoError(t, err)
	require.Equal(t, relay.StatusSuccessNoURL, res.Status)
	require.Empty(t, res.DownloadURL)
}

func TestOrchestrator_SourceUnavailable(t *testing.T) {
	src := httptest.NewServer(http.NotFoundHandler())
	defer src.Close()

	o := newOrchestrator("http://127.0.0.1:1/upload", 0, nil)
	res, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL})
	require.ErrorIs(t, err, engine.ErrSourceUnavailable)
	require.Equal(t, engine.KindSourceUnavailable, res.Kind())
}

func TestOrchestrator_UnsupportedHandle(t *testing.T) {
	o := newOrchestrator("http://127.0.0.1:1/upload", 0, nil)
	_, err := o.Relay(context.Background(), engine.FileReference{Handle: "gopher://x"})
	require.ErrorIs(t, err, engine.ErrSourceUnavailable)
}

func TestOrchestrator_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator("http://127.0.0.1:1/upload", 0, nil)
	res, err := o.Relay(ctx, engine.FileReference{Handle: "http://127.0.0.1:1/file"})
	require.ErrorIs(t, err, engine.ErrCanceled)
	require.Equal(t, relay.StatusFailed, res.Status)
}

// fakeChannel records whether it was closed.
type fakeChannel struct{ closed bool }

func (c *fakeChannel) Next([]byte) (int, bool, error) { return 0, false, nil }
func (c *fakeChannel) Close() error                   { c.closed = true; return nil }

type fakeFetcher struct {
	ch   *fakeChannel
	size int64
}

func (f *fakeFetcher) Open(context.Context, string) (engine.ReadChannel, int64, error) {
	return f.ch, f.size, nil
}

type failingUploader struct{ err error }

func (u failingUploader) Stream(_ context.Context, rc engine.ReadChannel, _, _ string, _ ...engine.StreamOption) (*engine.Transfer, error) {
	rc.Close()
	return &engine.Transfer{BytesWritten: 7}, u.err
}

func TestOrchestrator_ReleasesSourceOnLateSizeCheck(t *testing.T) {
	f := &fakeFetcher{ch: &fakeChannel{}, size: 10}
	o := relay.NewOrchestrator(relay.Config{
		Fetcher:     f,
		Uploader:    failingUploader{},
		Interpreter: engine.NewResponseInterpreter(""),
		SizeLimit:   5,
	})

	_, err := o.Relay(context.Background(), engine.FileReference{Handle: "x:y"})
	require.ErrorIs(t, err, engine.ErrSizeExceeded)
	require.True(t, f.ch.closed)
}

func TestOrchestrator_KeepsStreamError(t *testing.T) {
	streamErr := fmt.Errorf("%w: no progress for 1s", engine.ErrDestinationTimeout)
	o := relay.NewOrchestrator(relay.Config{
		Fetcher:     &fakeFetcher{ch: &fakeChannel{}},
		Uploader:    failingUploader{err: streamErr},
		Interpreter: engine.NewResponseInterpreter(""),
	})

	res, err := o.Relay(context.Background(), engine.FileReference{Handle: "x:y"})
	require.True(t, errors.Is(err, engine.ErrDestinationTimeout))
	require.Equal(t, engine.KindDestinationTimeout, res.Kind())
	require.Equal(t, int64(7), res.BytesTransferred)
}

func TestOrchestrator_IndependentRelays(t *testing.T) {
	src := sizedSource(t, 1000)
	dst := destination(t, http.StatusOK, `{"hash":"abc"}`)
	o := newOrchestrator(dst.URL, 0, nil)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Relay(context.Background(), engine.FileReference{Handle: src.URL})
			if err == nil {
				ids[i] = res.ID
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		require.NotEmpty(t, id)
		require.False(t, seen[id], "relay ids must be unique")
		seen[id] = true
	}
}

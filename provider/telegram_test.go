package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/franksops/filerelay/engine"
)

const testToken = "123456:secret-token"

type memoryCache struct {
	mu    sync.Mutex
	paths map[string]string
}

func (c *memoryCache) Get(fileID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.paths[fileID]
	return p, ok, nil
}

func (c *memoryCache) Put(fileID, filePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[fileID] = filePath
	return nil
}

// fakeBotAPI answers getFile for "known" and serves its file.
func fakeBotAPI(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var lookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+testToken+"/getFile", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		if r.URL.Query().Get("file_id") != "known" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`)
			return
		}
		io.WriteString(w, `{"ok":true,"result":{"file_id":"known","file_size":11,"file_path":"documents/file_7.pdf"}}`)
	})
	mux.HandleFunc("/file/bot"+testToken+"/documents/file_7.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "11")
		io.WriteString(w, "hello world")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lookups
}

func TestTelegramSource_Open(t *testing.T) {
	srv, _ := fakeBotAPI(t)
	src := NewTelegramSource(testToken, srv.URL, nil, nil)

	rc, size, err := src.Open(context.Background(), "tg:known")
	require.NoError(t, err)
	defer rc.Close()

	require.Equal(t, int64(11), size)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
}

func TestTelegramSource_CachesFilePath(t *testing.T) {
	srv, lookups := fakeBotAPI(t)
	cache := &memoryCache{paths: make(map[string]string)}
	src := NewTelegramSource(testToken, srv.URL, nil, cache)

	for range 3 {
		rc, _, err := src.Open(context.Background(), "tg:known")
		require.NoError(t, err)
		rc.Close()
	}

	require.Equal(t, int32(1), lookups.Load())
	require.Equal(t, "documents/file_7.pdf", cache.paths["known"])
}

func TestTelegramSource_UnknownFile(t *testing.T) {
	srv, _ := fakeBotAPI(t)
	src := NewTelegramSource(testToken, srv.URL, nil, nil)

	_, _, err := src.Open(context.Background(), "tg:missing")
	require.ErrorIs(t, err, engine.ErrSourceUnavailable)
	require.Contains(t, err.Error(), "invalid file_id")
}

func TestTelegramSource_RedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	src := NewTelegramSource(testToken, base, nil, nil)
	_, _, err := src.Open(context.Background(), "tg:known")
	require.ErrorIs(t, err, engine.ErrSourceUnavailable)
	require.NotContains(t, err.Error(), testToken)
	require.Contains(t, err.Error(), "<token>")
}

func TestTelegramSource_EmptyID(t *testing.T) {
	src := NewTelegramSource(testToken, "", nil, nil)
	_, _, err := src.Open(context.Background(), "tg:")
	require.ErrorIs(t, err, engine.ErrSourceUnavailable)
}

func ExampleSchemeOf() {
	fmt.Println(SchemeOf("tg:AgADBAAD"))
	// Output: tg
}

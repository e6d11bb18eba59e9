package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/franksops/filerelay/engine"
)

const (
	// SchemeTelegram is the handle scheme of TelegramSource: tg:<file_id>.
	SchemeTelegram = "tg"

	// DefaultTelegramAPI is the public Bot API endpoint.
	DefaultTelegramAPI = "https://api.telegram.org"
)

// PathCache remembers resolved Telegram file paths between relays.
type PathCache interface {
	Get(fileID string) (string, bool, error)
	Put(fileID, filePath string) error
}

var _ Source = (*TelegramSource)(nil)

// TelegramSource downloads files a bot received, by Telegram file id.
// The file path is resolved with getFile and then downloaded from the Bot
// API file endpoint.
type TelegramSource struct {
	token   string
	apiBase string
	client  *http.Client
	files   *HTTPSource
	cache   PathCache
}

// NewTelegramSource creates a TelegramSource for the bot token. An empty
// apiBase uses DefaultTelegramAPI; cache may be nil.
func NewTelegramSource(token, apiBase string, client *http.Client, cache PathCache) *TelegramSource {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	if client == nil {
		client = NewHTTPClient(0, 0)
	}
	return &TelegramSource{
		token:   token,
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  client,
		files:   NewHTTPSource(client),
		cache:   cache,
	}
}

type getFileResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		FileID   string `json:"file_id"`
		FileSize int64  `json:"file_size"`
		FilePath string `json:"file_path"`
	} `json:"result"`
}

func (s *TelegramSource) Open(ctx context.Context, handle string) (io.ReadCloser, int64, error) {
	fileID := strings.TrimPrefix(handle, SchemeTelegram+":")
	if fileID == "" {
		return nil, 0, fmt.Errorf("%w: empty telegram file id", engine.ErrSourceUnavailable)
	}

	filePath, size, err := s.resolve(ctx, fileID)
	if err != nil {
		return nil, 0, s.redact(err)
	}

	body, n, err := s.files.Open(ctx, s.fileURL(filePath))
	if err != nil {
		return nil, 0, s.redact(err)
	}
	if n > 0 {
		size = n
	}
	return body, size, nil
}

// resolve returns the file path of fileID. The size is zero on a cache hit.
func (s *TelegramSource) resolve(ctx context.Context, fileID string) (string, int64, error) {
	if s.cache != nil {
		filePath, ok, err := s.cache.Get(fileID)
		if err != nil {
			log.Warnw("reading file path cache", "file_id", fileID, "err", err)
		} else if ok {
			log.Debugw("file path cache hit", "file_id", fileID)
			return filePath, 0, nil
		}
	}

	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", s.apiBase, s.token, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", engine.ErrSourceUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: getFile: %w", engine.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	var reply getFileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reply); err != nil {
		return "", 0, fmt.Errorf("%w: getFile: HTTP %d: decoding reply: %w", engine.ErrSourceUnavailable, resp.StatusCode, err)
	}
	if !reply.OK || reply.Result.FilePath == "" {
		return "", 0, fmt.Errorf("%w: getFile: HTTP %d: %s", engine.ErrSourceUnavailable, resp.StatusCode, reply.Description)
	}

	if s.cache != nil {
		if err := s.cache.Put(fileID, reply.Result.FilePath); err != nil {
			log.Warnw("writing file path cache", "file_id", fileID, "err", err)
		}
	}
	return reply.Result.FilePath, reply.Result.FileSize, nil
}

func (s *TelegramSource) fileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", s.apiBase, s.token, strings.TrimPrefix(filePath, "/"))
}

func (s *TelegramSource) redact(err error) error {
	if s.token == "" {
		return err
	}
	return &redactedError{err: err, secret: s.token}
}

// redactedError hides the bot token that net/http puts in URL errors.
type redactedError struct {
	err    error
	secret string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.secret, "<token>")
}

func (e *redactedError) Unwrap() error { return e.err }

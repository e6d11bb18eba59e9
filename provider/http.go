package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franksops/filerelay/engine"
)

var _ Source = (*HTTPSource)(nil)

// HTTPSource downloads files addressed by an http or https URL.
type HTTPSource struct {
	client *http.Client
	// allowed is nil when every host is allowed.
	allowed map[string]struct{}
}

// NewHTTPSource creates an HTTPSource. A nil client uses NewHTTPClient(0, 0).
func NewHTTPSource(client *http.Client) *HTTPSource {
	if client == nil {
		client = NewHTTPClient(0, 0)
	}
	return &HTTPSource{client: client}
}

// NewHTTPClient builds a client for source downloads. connectTimeout bounds
// dialing and the TLS handshake, headerTimeout bounds the wait for response
// headers. The body is not bounded; ChunkChannel bounds each read instead.
func NewHTTPClient(connectTimeout, headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if connectTimeout > 0 {
		dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
		transport.DialContext = dialer.DialContext
		transport.TLSHandshakeTimeout = connectTimeout
	}
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// AllowHosts limits downloads, redirects included, to the given hosts. An
// entry with a leading dot matches every subdomain of it. Without entries
// every host stays allowed.
func (s *HTTPSource) AllowHosts(hosts ...string) *HTTPSource {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return s
	}
	s.allowed = allowed

	client := *s.client
	next := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := s.checkHost(req.URL); err != nil {
			return err
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	s.client = &client
	return s
}

func (s *HTTPSource) checkHost(u *url.URL) error {
	if s.allowed == nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := s.allowed[host]; ok {
		return nil
	}
	for h := range s.allowed {
		if strings.HasPrefix(h, ".") && strings.HasSuffix(host, h) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not allowed", host)
}

func (s *HTTPSource) Open(ctx context.Context, handle string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", engine.ErrSourceUnavailable, err)
	}
	if err := s.checkHost(req.URL); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", engine.ErrSourceUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", engine.ErrSourceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: HTTP %d: %s", engine.ErrSourceUnavailable,
			resp.StatusCode, engine.Preview(preview, engine.DefaultPreviewLength))
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}
	return resp.Body, size, nil
}

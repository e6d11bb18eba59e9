// Package api exposes the relay over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/relay"
	"github.com/franksops/filerelay/reply"
)

var log = logging.Logger("api")

// StatusClientClosedRequest is reported when the caller went away mid-relay.
const StatusClientClosedRequest = 499

// RelayRequest is the body of POST /v1/relays.
type RelayRequest struct {
	Handle   string `json:"handle"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// RelayResponse describes a finished relay.
type RelayResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
	Bytes       int64  `json:"bytes"`
	Checksum    string `json:"checksum"`
	DurationMS  int64  `json:"duration_ms"`
	Message     string `json:"message"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// Server routes relay requests to a Relayer.
type Server struct {
	relayer relay.Relayer
	metrics http.Handler
}

// NewServer creates a Server. metrics is mounted at /metrics when not nil.
func NewServer(relayer relay.Relayer, metrics http.Handler) *Server {
	return &Server{relayer: relayer, metrics: metrics}
}

// Routes returns the HTTP handler of the server.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Post("/v1/relays", s.createRelay)
	return r
}

func (s *Server) createRelay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	var req RelayRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		log.Warnw("invalid relay request", "req_id", reqID, "err", err)
		writeJSON(w, http.StatusBadRequest, RelayResponse{Error: "invalid request body: " + err.Error(), RequestID: reqID})
		return
	}
	if req.Handle == "" {
		writeJSON(w, http.StatusBadRequest, RelayResponse{Error: "handle is required", RequestID: reqID})
		return
	}
	if req.Size < 0 {
		writeJSON(w, http.StatusBadRequest, RelayResponse{Error: "size must not be negative", RequestID: reqID})
		return
	}

	ref := engine.FileReference{
		Handle:       req.Handle,
		Filename:     req.Filename,
		DeclaredSize: req.Size,
		Kind:         engine.ParseMediaKind(req.Kind),
	}
	res, err := s.relayer.Relay(ctx, ref)

	resp := RelayResponse{
		ID:          res.ID,
		Status:      string(res.Status),
		DownloadURL: res.DownloadURL,
		Bytes:       res.BytesTransferred,
		Checksum:    formatChecksum(res.Checksum),
		DurationMS:  res.Duration().Milliseconds(),
		Message:     reply.Text(res),
		RequestID:   reqID,
	}
	if err != nil {
		resp.ErrorKind = string(engine.Classify(err))
		resp.Error = err.Error()
	}
	log.Debugw("relay request served", "req_id", reqID, "id", res.ID, "status", res.Status)
	writeJSON(w, StatusFor(err), resp)
}

// StatusFor maps a relay error to the HTTP status reported to the caller.
func StatusFor(err error) int {
	switch engine.Classify(err) {
	case engine.KindNone:
		return http.StatusOK
	case engine.KindSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case engine.KindSourceUnavailable, engine.KindSourceRead,
		engine.KindDestinationUnreachable, engine.KindDestinationRejected:
		return http.StatusBadGateway
	case engine.KindDestinationTimeout:
		return http.StatusGatewayTimeout
	case engine.KindCanceled:
		return StatusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func formatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debugw("writing response", "err", err)
	}
}

// NewHTTPServer wraps h in an http.Server with the timeouts the relay needs.
// writeTimeout must outlast the longest relay; zero disables it.
func NewHTTPServer(addr string, h http.Handler, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       time.Minute,
	}
}

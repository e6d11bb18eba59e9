package relay

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
)

var reportHeader = []string{
	"id", "handle", "filename", "status", "download_url",
	"bytes", "checksum", "error_kind", "error", "duration_ms",
}

// Report writes one CSV row per finished relay. It is safe for concurrent use.
type Report struct {
	mu     sync.Mutex
	writer *csv.Writer
	first  bool
}

// NewReport creates a Report writing to dest. The header is written with the
// first row.
func NewReport(dest io.Writer) *Report {
	return &Report{writer: csv.NewWriter(dest), first: true}
}

// Append writes res as a row.
func (r *Report) Append(res Result) error {
	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}
	row := []string{
		res.ID,
		redactHandle(res.Ref.Handle),
		res.Ref.DisplayName(),
		string(res.Status),
		res.DownloadURL,
		strconv.FormatInt(res.BytesTransferred, 10),
		strconv.FormatUint(res.Checksum, 16),
		string(res.Kind()),
		errText,
		strconv.FormatInt(res.Duration().Milliseconds(), 10),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.first {
		if err := r.writer.Write(reportHeader); err != nil {
			return err
		}
		r.first = false
	}
	return r.writer.Write(row)
}

// Flush writes buffered rows to the destination.
func (r *Report) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writer.Flush()
	return r.writer.Error()
}

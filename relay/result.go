package relay

import (
	"time"

	"github.com/franksops/filerelay/engine"
)

// Status is the user-visible outcome of a relay.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusSuccessNoURL Status = "success_no_url"
	StatusFailed       Status = "failed"
)

// Result is the outcome of one Relay call. It is returned to the caller and
// not retained.
type Result struct {
	ID  string
	Ref engine.FileReference

	Status      Status
	DownloadURL string

	BytesTransferred int64
	Checksum         uint64

	// Err is set when Status is StatusFailed.
	Err error

	Started time.Time
	Ended   time.Time
}

// Duration returns how long the relay took.
func (r Result) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

// Kind classifies Err.
func (r Result) Kind() engine.ErrorKind {
	return engine.Classify(r.Err)
}

// Package reply renders relay results as text for the sender.
package reply

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/relay"
)

// Text renders res as a one-line reply.
func Text(res relay.Result) string {
	name := res.Ref.DisplayName()
	switch res.Status {
	case relay.StatusSuccess:
		return fmt.Sprintf("Uploaded %s (%s): %s", name, humanize.IBytes(uint64(res.BytesTransferred)), res.DownloadURL)
	case relay.StatusSuccessNoURL:
		return fmt.Sprintf("Uploaded %s (%s), but the destination returned no download link.", name, humanize.IBytes(uint64(res.BytesTransferred)))
	}
	return fmt.Sprintf("Could not relay %s: %s", name, Reason(res.Err))
}

// Reason describes a relay failure without internal detail.
func Reason(err error) string {
	var sizeErr *engine.SizeExceededError
	var rejected *engine.RejectedError
	switch {
	case errors.As(err, &sizeErr):
		return fmt.Sprintf("the file is larger than the %s limit.", humanize.IBytes(uint64(sizeErr.Limit)))
	case errors.As(err, &rejected):
		return fmt.Sprintf("the upload service answered HTTP %d: %s", rejected.StatusCode, rejected.Body)
	}

	switch engine.Classify(err) {
	case engine.KindSourceUnavailable:
		return "the file could not be downloaded."
	case engine.KindSourceRead:
		return "the download broke off before the file was complete."
	case engine.KindDestinationUnreachable:
		return "the upload service could not be reached."
	case engine.KindDestinationTimeout:
		return "the upload service timed out."
	case engine.KindCanceled:
		return "the relay was canceled."
	}
	return "an unexpected error occurred."
}

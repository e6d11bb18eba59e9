package engine

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned when a source stream cannot be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSizeExceeded is returned when a declared or observed size is over the limit.
	ErrSizeExceeded = errors.New("size limit exceeded")
	// ErrSourceReadFailed is returned when the source stream fails mid-transfer.
	ErrSourceReadFailed = errors.New("source read failed")
	// ErrDestinationUnreachable is returned when the upload request cannot be delivered.
	ErrDestinationUnreachable = errors.New("destination unreachable")
	// ErrDestinationTimeout is returned when the upload deadline passes or the upload stalls.
	ErrDestinationTimeout = errors.New("destination timeout")
	// ErrDestinationRejected is returned when the destination answers with a non-2xx status.
	ErrDestinationRejected = errors.New("destination rejected upload")
	// ErrCanceled is returned when the caller cancels a relay.
	ErrCanceled = errors.New("relay canceled")
)

// SizeExceededError carries the size that tripped the limit.
type SizeExceededError struct {
	Size  int64
	Limit int64
	// Observed is true when Size was counted during the transfer rather than declared up front.
	Observed bool
}

func (e *SizeExceededError) Error() string {
	if e.Observed {
		return fmt.Sprintf("size limit exceeded: read %d bytes (limit %d)", e.Size, e.Limit)
	}
	return fmt.Sprintf("size limit exceeded: declared %d bytes (limit %d)", e.Size, e.Limit)
}

func (e *SizeExceededError) Is(target error) bool {
	return target == ErrSizeExceeded
}

// RejectedError is a non-2xx answer from the destination.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("destination rejected upload: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrDestinationRejected
}

// ErrorKind is the coarse classification of a relay error.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindSourceUnavailable      ErrorKind = "source_unavailable"
	KindSizeExceeded           ErrorKind = "size_exceeded"
	KindSourceRead             ErrorKind = "source_read"
	KindDestinationUnreachable ErrorKind = "destination_unreachable"
	KindDestinationTimeout     ErrorKind = "destination_timeout"
	KindDestinationRejected    ErrorKind = "destination_rejected"
	KindCanceled               ErrorKind = "canceled"
	KindUnknown                ErrorKind = "unknown"
)

// Classify maps err onto the relay error taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	case errors.Is(err, ErrSizeExceeded):
		return KindSizeExceeded
	case errors.Is(err, ErrSourceUnavailable):
		return KindSourceUnavailable
	case errors.Is(err, ErrSourceReadFailed):
		return KindSourceRead
	case errors.Is(err, ErrDestinationTimeout):
		return KindDestinationTimeout
	case errors.Is(err, ErrDestinationUnreachable):
		return KindDestinationUnreachable
	case errors.Is(err, ErrDestinationRejected):
		return KindDestinationRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindUnknown
}

// Canceled wraps a context error so it matches both ErrCanceled and the context sentinel.
func Canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

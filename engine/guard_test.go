package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCheckSize(t *testing.T) {
	tests := []struct {
		name     string
		declared int64
		limit    int64
		reject   bool
	}{
		{"under limit", 10, 20, false},
		{"at limit", 20, 20, false},
		{"over limit", 21, 20, true},
		{"unknown size", 0, 20, false},
		{"negative size", -1, 20, false},
		{"limit disabled", 1 << 40, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSize(tt.declared, tt.limit)
			if !tt.reject {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var sizeErr *SizeExceededError
			if !errors.As(err, &sizeErr) {
				t.Fatalf("expected *SizeExceededError, got %v", err)
			}
			if sizeErr.Size != tt.declared || sizeErr.Limit != tt.limit || sizeErr.Observed {
				t.Errorf("unexpected error payload: %+v", sizeErr)
			}
			if !errors.Is(err, ErrSizeExceeded) {
				t.Error("expected error to match ErrSizeExceeded")
			}
		})
	}
}

func TestClassify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{&SizeExceededError{Size: 2, Limit: 1}, KindSizeExceeded},
		{&RejectedError{StatusCode: 500}, KindDestinationRejected},
		{fmt.Errorf("%w: HTTP 404", ErrSourceUnavailable), KindSourceUnavailable},
		{fmt.Errorf("%w: reset", ErrSourceReadFailed), KindSourceRead},
		{fmt.Errorf("%w: refused", ErrDestinationUnreachable), KindDestinationUnreachable},
		{fmt.Errorf("%w: stalled", ErrDestinationTimeout), KindDestinationTimeout},
		{Canceled(ctx), KindCanceled},
		{context.DeadlineExceeded, KindCanceled},
		{errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCanceled_WrapsCause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Canceled(ctx)
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to match ErrCanceled and context.Canceled, got %v", err)
	}
}

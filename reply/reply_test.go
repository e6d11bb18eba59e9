package reply_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/relay"
	"github.com/franksops/filerelay/reply"
)

func TestText(t *testing.T) {
	ref := engine.FileReference{Kind: engine.KindVoice}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		res  relay.Result
		want string
	}{
		{"success", relay.Result{Ref: ref, Status: relay.StatusSuccess, DownloadURL: "https://dest/x", BytesTransferred: 2048}, "Uploaded voice.ogg (2.0 KiB): https://dest/x"},
		{"no url", relay.Result{Ref: ref, Status: relay.StatusSuccessNoURL, BytesTransferred: 10}, "Uploaded voice.ogg (10 B), but the destination returned no download link."},
		{"too large", relay.Result{Ref: ref, Status: relay.StatusFailed, Err: &engine.SizeExceededError{Size: 30 << 20, Limit: 20 << 20}}, "Could not relay voice.ogg: the file is larger than the 20 MiB limit."},
		{"rejected", relay.Result{Ref: ref, Status: relay.StatusFailed, Err: &engine.RejectedError{StatusCode: 503, Body: "busy"}}, "Could not relay voice.ogg: the upload service answered HTTP 503: busy"},
		{"source", relay.Result{Ref: ref, Status: relay.StatusFailed, Err: fmt.Errorf("%w: HTTP 404", engine.ErrSourceUnavailable)}, "Could not relay voice.ogg: the file could not be downloaded."},
		{"timeout", relay.Result{Ref: ref, Status: relay.StatusFailed, Err: fmt.Errorf("%w: no progress for 1m0s", engine.ErrDestinationTimeout)}, "Could not relay voice.ogg: the upload service timed out."},
		{"canceled", relay.Result{Ref: ref, Status: relay.StatusFailed, Err: engine.Canceled(ctx)}, "Could not relay voice.ogg: the relay was canceled."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, reply.Text(tt.res))
		})
	}
}

func TestReason_Unknown(t *testing.T) {
	require.Equal(t, "an unexpected error occurred.", reply.Reason(fmt.Errorf("boom")))
}

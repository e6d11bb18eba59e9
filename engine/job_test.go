package engine_test

import (
	"testing"

	"github.com/franksops/filerelay/engine"
)

func TestFileReference_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		ref  engine.FileReference
		want string
	}{
		{"declared name wins", engine.FileReference{Filename: "report.pdf", Kind: engine.KindPhoto}, "report.pdf"},
		{"blank name falls back", engine.FileReference{Filename: "  ", Kind: engine.KindVideo}, "video.mp4"},
		{"photo", engine.FileReference{Kind: engine.KindPhoto}, "photo.jpg"},
		{"audio", engine.FileReference{Kind: engine.KindAudio}, "audio.mp3"},
		{"voice", engine.FileReference{Kind: engine.KindVoice}, "voice.ogg"},
		{"document", engine.FileReference{Kind: engine.KindDocument}, "document.bin"},
		{"unset kind", engine.FileReference{}, "document.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.DisplayName(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseMediaKind(t *testing.T) {
	if got := engine.ParseMediaKind(" Video "); got != engine.KindVideo {
		t.Errorf("expected video, got %s", got)
	}
	if got := engine.ParseMediaKind("sticker"); got != engine.KindDocument {
		t.Errorf("expected unknown kinds to default to document, got %s", got)
	}
}

func TestJobChannel(t *testing.T) {
	ch := make(engine.JobChannel, 1)

	ch <- engine.RelayJob{ID: "1", Ref: engine.FileReference{Handle: "tg:abc"}}
	received := <-ch

	if received.Ref.Handle != "tg:abc" {
		t.Errorf("expected tg:abc, got %s", received.Ref.Handle)
	}
}

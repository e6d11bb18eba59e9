package engine

import (
	"context"
	"strings"
)

// MediaKind tags the kind of message attachment a file arrived as.
type MediaKind string

const (
	KindDocument MediaKind = "document"
	KindVideo    MediaKind = "video"
	KindPhoto    MediaKind = "photo"
	KindAudio    MediaKind = "audio"
	KindVoice    MediaKind = "voice"
)

var defaultFilenames = map[MediaKind]string{
	KindDocument: "document.bin",
	KindVideo:    "video.mp4",
	KindPhoto:    "photo.jpg",
	KindAudio:    "audio.mp3",
	KindVoice:    "voice.ogg",
}

// ParseMediaKind returns the MediaKind named by s, defaulting to KindDocument.
func ParseMediaKind(s string) MediaKind {
	k := MediaKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := defaultFilenames[k]; ok {
		return k
	}
	return KindDocument
}

// FileReference identifies one file at the source.
type FileReference struct {
	// Handle is an opaque source handle such as a URL or "tg:<file_id>".
	Handle string

	// Filename is the name declared by the sender. May be empty.
	Filename string

	// DeclaredSize is the size in bytes reported before the transfer. Zero means unknown.
	DeclaredSize int64

	// Kind only picks a default filename when Filename is empty.
	Kind MediaKind
}

// DisplayName returns the filename to send to the destination.
func (r FileReference) DisplayName() string {
	if name := strings.TrimSpace(r.Filename); name != "" {
		return name
	}
	if name, ok := defaultFilenames[r.Kind]; ok {
		return name
	}
	return defaultFilenames[KindDocument]
}

// RelayJob is one queued relay for the worker pool.
type RelayJob struct {
	// ID is used to correlate the job with its report row.
	ID string

	Ref FileReference

	// Ctx allows cancellation or timeout settings for this specific job.
	Ctx context.Context
}

// JobChannel is a channel used to queue and dispatch RelayJobs to workers
// in the worker pool.
type JobChannel chan RelayJob

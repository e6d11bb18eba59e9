package provider

import (
	"context"
	"io"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("provider")

// FileInfo represents the standard metadata for a file or a directory
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Source opens files named by a handle for streaming reads.
// A typical Source might be an HTTP URL, a Telegram file id, S3, local disk.
type Source interface {
	// Open starts reading the file. The returned size is the size the source
	// reports, or zero when unknown. The stream lives as long as ctx.
	Open(ctx context.Context, handle string) (io.ReadCloser, int64, error)
}

// Lister is a Source that can enumerate its files for batch relays.
type Lister interface {
	Source

	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// Handle returns the handle Open accepts for path.
	Handle(path string) string
}

type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *fileInfo) Name() string       { return f.name }
func (f *fileInfo) Size() int64        { return f.size }
func (f *fileInfo) IsDir() bool        { return f.isDir }
func (f *fileInfo) ModTime() time.Time { return f.modTime }

package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/franksops/filerelay/engine"
)

// SchemeFile is the handle scheme of LocalSource.
const SchemeFile = "file"

var _ Lister = (*LocalSource)(nil)

// LocalSource reads files from a posix-compliant local filesystem.
// Handles look like file:///abs/path or file://rel/path.
type LocalSource struct {
	basePath string
}

// NewLocalSource creates a new LocalSource rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalSource(basePath string) *LocalSource {
	return &LocalSource{basePath: basePath}
}

func (p *LocalSource) resolve(path string) string {
	if p.basePath == "" {
		return path
	}
	return filepath.Join(p.basePath, filepath.Clean("/"+path))
}

// Handle returns the file handle for a path relative to the source root.
func (p *LocalSource) Handle(path string) string {
	return SchemeFile + "://" + filepath.ToSlash(path)
}

func pathFromHandle(handle string) string {
	return filepath.FromSlash(strings.TrimPrefix(handle, SchemeFile+"://"))
}

func (p *LocalSource) Open(ctx context.Context, handle string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	fullPath := p.resolve(pathFromHandle(handle))
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", engine.ErrSourceUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %w", engine.ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s is a directory", engine.ErrSourceUnavailable, fullPath)
	}
	return f, info.Size(), nil
}

func (p *LocalSource) Stat(ctx context.Context, path string) (FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	info, err := os.Stat(p.resolve(path))
	if err != nil {
		return nil, err
	}
	return wrapOSFileInfo(info), nil
}

func (p *LocalSource) List(ctx context.Context, path string) ([]FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entries, err := os.ReadDir(p.resolve(path))
	if err != nil {
		return nil, err
	}

	var infos []FileInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // skip files that disappeared between ReadDir and Info
		}
		infos = append(infos, wrapOSFileInfo(info))
	}
	return infos, nil
}

func wrapOSFileInfo(info os.FileInfo) FileInfo {
	return &fileInfo{
		name:    info.Name(),
		size:    info.Size(),
		isDir:   info.IsDir(),
		modTime: info.ModTime(),
	}
}

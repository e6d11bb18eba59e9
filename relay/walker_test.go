package relay

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/franksops/filerelay/engine"
	"github.com/franksops/filerelay/provider"
)

type mockFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return m.size }
func (m mockFileInfo) IsDir() bool        { return m.isDir }
func (m mockFileInfo) ModTime() time.Time { return m.modTime }

type mockLister struct {
	files map[string]mockFileInfo
	dirs  map[string][]mockFileInfo
}

func newMockLister() *mockLister {
	return &mockLister{
		files: make(map[string]mockFileInfo),
		dirs:  make(map[string][]mockFileInfo),
	}
}

func (m *mockLister) Stat(ctx context.Context, path string) (provider.FileInfo, error) {
	if info, ok := m.files[path]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("file not found: %s", path)
}

func (m *mockLister) List(ctx context.Context, path string) ([]provider.FileInfo, error) {
	if files, ok := m.dirs[path]; ok {
		res := make([]provider.FileInfo, len(files))
		for i, f := range files {
			res[i] = f
		}
		return res, nil
	}
	return nil, fmt.Errorf("directory not found: %s", path)
}

func (m *mockLister) Open(ctx context.Context, handle string) (io.ReadCloser, int64, error) {
	return nil, 0, fmt.Errorf("not implemented")
}

func (m *mockLister) Handle(path string) string { return "mock://" + path }

func TestWalker_Walk(t *testing.T) {
	ml := newMockLister()

	// /root
	// /root/file1.txt
	// /root/dir1/file2.txt
	// /root/dir1/dir2/file3.txt
	ml.files["/root"] = mockFileInfo{name: "root", isDir: true}
	ml.dirs["/root"] = []mockFileInfo{
		{name: "file1.txt", size: 1},
		{name: "dir1", isDir: true},
	}
	ml.dirs["/root/dir1"] = []mockFileInfo{
		{name: "file2.txt", size: 2},
		{name: "dir2", isDir: true},
	}
	ml.dirs["/root/dir1/dir2"] = []mockFileInfo{
		{name: "file3.txt", size: 3},
	}

	jobChan := make(engine.JobChannel, 10)
	walker := NewWalker(ml, jobChan)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- walker.Walk(ctx, "/root")
		close(jobChan)
	}()

	received := make(map[string]engine.FileReference)
	for job := range jobChan {
		if job.ID == "" {
			t.Error("expected every job to carry an id")
		}
		received[job.Ref.Handle] = job.Ref
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	expected := map[string]int64{
		"mock:///root/file1.txt":           1,
		"mock:///root/dir1/file2.txt":      2,
		"mock:///root/dir1/dir2/file3.txt": 3,
	}
	if len(received) != len(expected) {
		t.Fatalf("Expected %d files, got %d", len(expected), len(received))
	}
	for handle, size := range expected {
		ref, ok := received[handle]
		if !ok {
			t.Errorf("Expected file %s not found in jobs", handle)
			continue
		}
		if ref.DeclaredSize != size {
			t.Errorf("Expected size %d for %s, got %d", size, handle, ref.DeclaredSize)
		}
	}
}

func TestWalker_Walk_SingleFile(t *testing.T) {
	ml := newMockLister()
	ml.files["/root/file1.txt"] = mockFileInfo{name: "file1.txt", size: 5}

	jobChan := make(engine.JobChannel, 1)
	walker := NewWalker(ml, jobChan)

	if err := walker.Walk(context.Background(), "/root/file1.txt"); err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	select {
	case job := <-jobChan:
		if job.Ref.Handle != "mock:///root/file1.txt" {
			t.Errorf("Expected mock:///root/file1.txt, got %s", job.Ref.Handle)
		}
		if job.Ref.Filename != "file1.txt" {
			t.Errorf("Expected filename file1.txt, got %s", job.Ref.Filename)
		}
	default:
		t.Fatal("Expected a job on the channel")
	}
}

func TestWalker_Walk_Canceled(t *testing.T) {
	ml := newMockLister()
	ml.files["/root"] = mockFileInfo{name: "root", isDir: true}
	ml.dirs["/root"] = []mockFileInfo{{name: "a"}, {name: "b"}}

	// unbuffered and never read: the walker must give up on cancel
	jobChan := make(engine.JobChannel)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := NewWalker(ml, jobChan).Walk(ctx, "/root"); err != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

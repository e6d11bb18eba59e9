package provider

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/franksops/filerelay/engine"
)

func TestLocalSource_Stat(t *testing.T) {
	tempBase := t.TempDir()

	p := NewLocalSource(tempBase)
	ctx := context.Background()

	testFile := "test-stat.txt"
	testContent := []byte("hello stat")

	if err := os.WriteFile(filepath.Join(tempBase, testFile), testContent, 0644); err != nil {
		t.Fatal(err)
	}

	info, err := p.Stat(ctx, testFile)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if info.Name() != testFile {
		t.Errorf("expected %q, got %q", testFile, info.Name())
	}
	if info.Size() != int64(len(testContent)) {
		t.Errorf("expected size %d, got %d", len(testContent), info.Size())
	}
	if info.IsDir() {
		t.Errorf("expected isDir to be false")
	}
}

func TestLocalSource_List(t *testing.T) {
	tempBase := t.TempDir()

	testDir := "subdir"
	if err := os.MkdirAll(filepath.Join(tempBase, testDir), 0755); err != nil {
		t.Fatal(err)
	}

	file1 := "file1.txt"
	file2 := "file2.txt"
	if err := os.WriteFile(filepath.Join(tempBase, testDir, file1), []byte("f1"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempBase, testDir, file2), []byte("f2"), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewLocalSource(tempBase)

	infos, err := p.List(context.Background(), testDir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(infos) != 2 {
		t.Errorf("expected 2 items, got %d", len(infos))
	}

	foundF1, foundF2 := false, false
	for _, info := range infos {
		if info.Name() == file1 {
			foundF1 = true
		}
		if info.Name() == file2 {
			foundF2 = true
		}
	}
	if !foundF1 || !foundF2 {
		t.Errorf("expected to find file1 and file2")
	}
}

func TestLocalSource_Open(t *testing.T) {
	tempBase := t.TempDir()

	testFile := "test-read.txt"
	testContent := []byte("hello read")
	if err := os.WriteFile(filepath.Join(tempBase, testFile), testContent, 0644); err != nil {
		t.Fatal(err)
	}

	p := NewLocalSource(tempBase)

	rc, size, err := p.Open(context.Background(), p.Handle(testFile))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	if size != int64(len(testContent)) {
		t.Errorf("expected size %d, got %d", len(testContent), size)
	}

	content, err := io.ReadAll(rc)
	if err != nil {
		t.Errorf("ReadAll failed: %v", err)
	}
	if string(content) != string(testContent) {
		t.Errorf("expected content %q, got %q", testContent, content)
	}
}

func TestLocalSource_OpenMissing(t *testing.T) {
	p := NewLocalSource(t.TempDir())

	_, _, err := p.Open(context.Background(), "file://missing.txt")
	if !errors.Is(err, engine.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the os error to be kept, got %v", err)
	}
}

func TestLocalSource_OpenDirectory(t *testing.T) {
	tempBase := t.TempDir()
	if err := os.Mkdir(filepath.Join(tempBase, "dir"), 0755); err != nil {
		t.Fatal(err)
	}

	_, _, err := NewLocalSource(tempBase).Open(context.Background(), "file://dir")
	if !errors.Is(err, engine.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable for a directory, got %v", err)
	}
}

func TestLocalSource_StaysInsideBase(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalSource(tempBase)

	if got, want := p.resolve("../../etc/passwd"), filepath.Join(tempBase, "etc", "passwd"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

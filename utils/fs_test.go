package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSessionFilePath(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("HOME", configDir)

	path, err := SessionFilePath()
	if err != nil {
		t.Fatalf("SessionFilePath() error: %v", err)
	}
	if filepath.Base(path) != "session" {
		t.Errorf("expected session file name, got %s", path)
	}
	if filepath.Base(filepath.Dir(path)) != "crunchy-cli" {
		t.Errorf("expected crunchy-cli config directory, got %s", path)
	}
}

func TestFileOperations_CreateTempFile(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	fileOps := NewFileOperations()

	path, err := fileOps.CreateTempFile(".ts")
	if err != nil {
		t.Fatalf("CreateTempFile() error: %v", err)
	}
	defer os.Remove(path)

	name := filepath.Base(path)
	if !strings.HasPrefix(name, TempPrefix) {
		t.Errorf("temp file %s is missing the %s prefix", name, TempPrefix)
	}
	if !strings.HasSuffix(name, ".ts") {
		t.Errorf("temp file %s is missing the suffix", name)
	}
	if filepath.Dir(path) != os.TempDir() {
		t.Errorf("temp file should be created in %s, got %s", os.TempDir(), path)
	}
}

func TestFileOperations_CreatePartialFile(t *testing.T) {
	fileOps := NewFileOperations()
	path := filepath.Join(t.TempDir(), "partial.bin")

	if err := fileOps.CreatePartialFile(path, 4096); err != nil {
		t.Fatalf("CreatePartialFile() error: %v", err)
	}

	size, err := fileOps.GetFileSize(path)
	if err != nil {
		t.Fatalf("GetFileSize() error: %v", err)
	}
	if size != 4096 {
		t.Errorf("expected preallocated size 4096, got %d", size)
	}
}

func TestFileOperations_MoveFile(t *testing.T) {
	fileOps := NewFileOperations()
	tempDir := t.TempDir()

	src := filepath.Join(tempDir, "src.bin")
	dst := filepath.Join(tempDir, "nested", "dir", "dst.bin")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	if err := fileOps.MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile() error: %v", err)
	}

	if fileOps.FileExists(src) {
		t.Error("source should not exist after move")
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read destination: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("destination content = %q", data)
	}
}

func TestFileOperations_IsDir(t *testing.T) {
	fileOps := NewFileOperations()
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if !fileOps.IsDir(tempDir) {
		t.Error("expected directory")
	}
	if fileOps.IsDir(file) {
		t.Error("regular file reported as directory")
	}
	if fileOps.IsDir(filepath.Join(tempDir, "missing")) {
		t.Error("missing path reported as directory")
	}
}

func TestCopyFile(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "a")
	dst := filepath.Join(tempDir, "b")
	if err := os.WriteFile(src, []byte(strings.Repeat("z", 10000)), 0644); err != nil {
		t.Fatal(err)
	}

	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile() error: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if len(data) != 10000 {
		t.Errorf("copied %d bytes, want 10000", len(data))
	}
}

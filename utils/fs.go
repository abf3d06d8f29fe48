package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempPrefix marks every temporary artifact the process creates so the
// shutdown handler can find them again
const TempPrefix = ".crunchy-cli_"

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// SessionFilePath returns <user config dir>/crunchy-cli/session
func SessionFilePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return filepath.Join(configDir, "crunchy-cli", "session"), nil
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// IsDir reports whether path exists and is a directory
func (f *FileOperations) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// CreateTempFile creates an empty prefixed file in the system temp directory
func (f *FileOperations) CreateTempFile(suffix string) (string, error) {
	file, err := os.CreateTemp(os.TempDir(), TempPrefix+"*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// CreatePartialFile creates or truncates a file and preallocates size bytes
func (f *FileOperations) CreatePartialFile(partPath string, size int64) (err error) {
	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create partial file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if size > 0 {
		if err := file.Truncate(size); err != nil {
			return fmt.Errorf("failed to allocate file space: %w", err)
		}
	}

	return nil
}

// MoveFile renames oldPath to newPath, falling back to copy and delete when
// both live on different file systems (the temp dir often does)
func (f *FileOperations) MoveFile(oldPath, newPath string) error {
	if err := f.EnsureDir(newPath); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	err := os.Rename(oldPath, newPath)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	if err := copyFile(oldPath, newPath); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("failed to move %s to %s: %w", oldPath, newPath, err)
	}
	return os.Remove(oldPath)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

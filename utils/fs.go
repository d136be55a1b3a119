package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const partSuffix = ".part"

// maxUniqueAttempts bounds the " (n)" suffix search in UniquePath
const maxUniqueAttempts = 10000

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	exists, err := f.PathExists(path)
	return exists || err != nil
}

// PathExists reports whether path exists. Stat errors other than
// "not exist" (a parent that is not a directory, permission denied) are
// returned rather than guessed at.
func (f *FileOperations) PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// GetFileSize returns the size of a file
func (f *FileOperations) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// AtomicRename performs an atomic file rename operation
func (f *FileOperations) AtomicRename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// PartPath returns the temporary path used while outputPath is being written
func (f *FileOperations) PartPath(outputPath string) string {
	return outputPath + partSuffix
}

// CreatePartialFile creates or truncates the temporary file for outputPath
func (f *FileOperations) CreatePartialFile(outputPath string) (*os.File, error) {
	if err := f.EnsureDir(outputPath); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.OpenFile(f.PartPath(outputPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create partial file: %w", err)
	}
	return file, nil
}

// RemovePartial deletes the temporary file for outputPath. A missing file
// is not an error.
func (f *FileOperations) RemovePartial(outputPath string) error {
	err := os.Remove(f.PartPath(outputPath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeFilename reduces a server-suggested name to a single safe path
// element. Directory components are dropped and names that would escape
// or collide with the directory itself fall back to "file".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "file"
	}
	return name
}

// UniquePath returns a path in dir for name that does not exist yet,
// appending " (1)", " (2)", ... before the extension when needed. It fails
// when dir cannot be inspected or no free name is found.
func (f *FileOperations) UniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i <= maxUniqueAttempts; i++ {
		candidate := filepath.Join(dir, name)
		if i > 0 {
			candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		}
		free, err := f.isFree(candidate)
		if err != nil {
			return "", fmt.Errorf("cannot inspect %s: %w", candidate, err)
		}
		if free {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s after %d attempts", name, dir, maxUniqueAttempts)
}

// isFree reports whether neither path nor its .part file exist
func (f *FileOperations) isFree(path string) (bool, error) {
	for _, p := range []string{path, f.PartPath(path)} {
		exists, err := f.PathExists(p)
		if err != nil || exists {
			return false, err
		}
	}
	return true, nil
}

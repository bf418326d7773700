package ioutils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReadCodesFile reads codes from a UTF-8 text file, one per line.
//
// The content is passed through SanitizeCodes with the given maxLength.
//
// Returns an error wrapping fs.ErrNotExist if the file is missing.
//
// Example:
//
//	codes, err := ReadCodesFile("codes.txt", 256)
func ReadCodesFile(path string, maxLength int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read codes from %s: %w", path, err)
	}
	return SanitizeCodes(string(data), maxLength), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// EnsureParentDir creates the directory that will contain path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return EnsureDir(dir)
}

// FormatElapsed formats milliseconds for display: "1.23s" at or above one
// second, "523ms" below.
func FormatElapsed(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%dms", int(ms))
}

// FormatDuration is FormatElapsed for a time.Duration.
func FormatDuration(d time.Duration) string {
	return FormatElapsed(float64(d) / float64(time.Millisecond))
}

package fsstore

import (
	"errors"
	"fmt"
	"os"
)

// ReadText returns the file's content byte for byte. A missing file reports
// exists=false with no error, so callers can treat absence as first run.
func ReadText(path string) (content string, exists bool, err error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(normalizedPath)
	switch {
	case err == nil:
		return string(data), true, nil
	case errors.Is(err, os.ErrNotExist):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("read text %s: %w", normalizedPath, err)
	}
}

// WriteTextAtomic replaces the file's content in a single atomic step.
func WriteTextAtomic(path string, content string, opts FileOptions) error {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return err
	}
	return writeAtomic(normalizedPath, []byte(content), opts)
}

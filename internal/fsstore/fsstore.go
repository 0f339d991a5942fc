// Package fsstore provides small filesystem persistence helpers: atomic
// whole-file writes and an advisory cross-process lock. Every store in this
// repo persists as a full document overwrite, so partial-write recovery is
// never needed.
package fsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

var (
	ErrInvalidPath       = errors.New("fsstore: invalid path")
	ErrLockTimeout       = errors.New("fsstore: lock timeout")
	ErrLockUnavailable   = errors.New("fsstore: lock unavailable")
	ErrEncodeFailed      = errors.New("fsstore: encode failed")
	ErrDecodeFailed      = errors.New("fsstore: decode failed")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)

type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func normalizeFileOptions(opts FileOptions) FileOptions {
	if opts.DirPerm == 0 {
		opts.DirPerm = defaultDirPerm
	}
	if opts.FilePerm == 0 {
		opts.FilePerm = defaultFilePerm
	}
	return opts
}

func normalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

func EnsureDir(path string, perm os.FileMode) error {
	normalized, err := normalizePath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(normalized, perm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", normalized, err)
	}
	return nil
}

func writeAtomic(path string, content []byte, opts FileOptions) error {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return err
	}
	opts = normalizeFileOptions(opts)

	parentDir := filepath.Dir(normalizedPath)
	if err := EnsureDir(parentDir, opts.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(parentDir, filepath.Base(normalizedPath)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrAtomicWriteFailed, normalizedPath, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: write temp for %s: %v", ErrAtomicWriteFailed, normalizedPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp for %s: %v", ErrAtomicWriteFailed, normalizedPath, err)
	}
	if err := tmp.Chmod(opts.FilePerm); err != nil {
		return fmt.Errorf("%w: chmod temp for %s: %v", ErrAtomicWriteFailed, normalizedPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp for %s: %v", ErrAtomicWriteFailed, normalizedPath, err)
	}
	if err := os.Rename(tmpPath, normalizedPath); err != nil {
		return fmt.Errorf("%w: rename temp for %s: %v", ErrAtomicWriteFailed, normalizedPath, err)
	}

	// Best effort directory sync for durability; ignore failures.
	if dirFD, err := os.Open(parentDir); err == nil {
		_ = dirFD.Sync()
		_ = dirFD.Close()
	}
	return nil
}

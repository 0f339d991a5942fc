package fsstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockKeyMaxLen = 120
	lockRetryWait = 25 * time.Millisecond
)

func BuildLockPath(lockRoot string, lockKey string) (string, error) {
	lockRoot, err := normalizePath(lockRoot)
	if err != nil {
		return "", err
	}
	lockKey, err = validateLockKey(lockKey)
	if err != nil {
		return "", err
	}
	return filepath.Join(lockRoot, lockKey+".lck"), nil
}

// WithLock runs fn while holding an exclusive advisory lock at lockPath.
// Contention is retried until ctx is done.
func WithLock(ctx context.Context, lockPath string, fn func() error) error {
	normalizedPath, err := normalizePath(lockPath)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(normalizedPath), defaultDirPerm); err != nil {
		return err
	}
	return withLockFile(ctx, normalizedPath, fn)
}

func validateLockKey(lockKey string) (string, error) {
	lockKey = strings.TrimSpace(lockKey)
	if lockKey == "" {
		return "", fmt.Errorf("%w: empty lock key", ErrInvalidPath)
	}
	if len(lockKey) > lockKeyMaxLen {
		return "", fmt.Errorf("%w: lock key too long", ErrInvalidPath)
	}
	if strings.ToLower(lockKey) != lockKey {
		return "", fmt.Errorf("%w: lock key must be lowercase", ErrInvalidPath)
	}
	if strings.HasPrefix(lockKey, ".") || strings.HasSuffix(lockKey, ".") {
		return "", fmt.Errorf("%w: lock key cannot start or end with dot", ErrInvalidPath)
	}
	for _, r := range lockKey {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return "", fmt.Errorf("%w: invalid lock key character %q", ErrInvalidPath, r)
	}
	return lockKey, nil
}

func waitForLockRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, lockPath, ctx.Err())
	case <-timer.C:
		return nil
	}
}

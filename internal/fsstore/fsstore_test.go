package fsstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadWriteJSONAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	type payload struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}
	in := payload{Name: "alpha", Items: []string{"one", "two"}}
	if err := WriteJSONAtomic(path, in, FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}

	var out payload
	ok, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !ok {
		t.Fatalf("ReadJSON() expected ok=true")
	}
	if out.Name != in.Name || len(out.Items) != 2 {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	t.Parallel()

	var out map[string]any
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ok {
		t.Fatalf("ReadJSON() expected ok=false for missing file")
	}
}

func TestWriteTextAtomicOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "note.txt")
	if err := WriteTextAtomic(path, "first", FileOptions{}); err != nil {
		t.Fatalf("WriteTextAtomic() error = %v", err)
	}
	if err := WriteTextAtomic(path, "second", FileOptions{}); err != nil {
		t.Fatalf("WriteTextAtomic() error = %v", err)
	}
	got, exists, err := ReadText(path)
	if err != nil {
		t.Fatalf("ReadText() error = %v", err)
	}
	if !exists || got != "second" {
		t.Fatalf("ReadText() = %q exists=%v, want %q", got, exists, "second")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestBuildLockPathInvalidKey(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), ".fslocks")
	invalid := []string{
		"",
		"State.main",
		"state/main",
		".state.main",
		"state.main.",
		"state main",
	}
	for _, key := range invalid {
		key := key
		t.Run(key, func(t *testing.T) {
			t.Parallel()
			_, err := BuildLockPath(root, key)
			if err == nil {
				t.Fatalf("BuildLockPath(%q) expected error", key)
			}
			if !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("BuildLockPath(%q) error = %v, want ErrInvalidPath", key, err)
			}
		})
	}
}

func TestWithLockRuns(t *testing.T) {
	t.Parallel()

	lockPath, err := BuildLockPath(filepath.Join(t.TempDir(), ".fslocks"), "state.main")
	if err != nil {
		t.Fatalf("BuildLockPath() error = %v", err)
	}
	ran := false
	if err := WithLock(context.Background(), lockPath, func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !ran {
		t.Fatalf("WithLock() did not run fn")
	}
}

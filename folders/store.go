package folders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yk2estrella/leitobot3.0/internal/fsstore"
)

// Store is the durable folder collection. All slots are materialized at all
// times; in-memory state and the on-disk document agree whenever a mutating
// call has returned.
type Store struct {
	path string

	mu    sync.Mutex
	slots map[string][]string
}

// Open loads the document at path, or initializes every slot empty when no
// prior file exists.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("folders: store path is required")
	}
	s := &Store{path: filepath.Clean(path), slots: emptySlots()}

	var doc document
	found, err := fsstore.ReadJSON(s.path, &doc)
	if err != nil {
		return nil, fmt.Errorf("folders: load %s: %w", s.path, err)
	}
	if !found {
		return s, nil
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("folders: unsupported document version: %d", doc.Version)
	}
	for _, id := range SlotIDs() {
		if lines, ok := doc.Slots[id]; ok {
			s.slots[id] = append([]string(nil), lines...)
		}
	}
	return s, nil
}

// Replace overwrites the slot's content with lines and persists the whole
// document. Memory is only updated after the write succeeds, so a disk
// failure leaves the previous state intact.
func (s *Store) Replace(ctx context.Context, slot string, lines []string) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	if !IsSlotID(slot) {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lockPath, err := s.lockPath()
	if err != nil {
		return err
	}
	replacement := append([]string(nil), lines...)
	return fsstore.WithLock(ctx, lockPath, func() error {
		next := make(map[string][]string, slotCount)
		for id, content := range s.slots {
			next[id] = content
		}
		next[slot] = replacement
		if err := s.saveLocked(next); err != nil {
			return err
		}
		s.slots = next
		return nil
	})
}

// Get returns a copy of the slot's entries in stored order.
func (s *Store) Get(slot string) ([]string, error) {
	if !IsSlotID(slot) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.slots[slot]...), nil
}

// Search scans slots in ascending order and reports the first slot holding
// an entry whose lowercase form contains the lowercase query.
func (s *Store) Search(query string) (string, bool) {
	needle := strings.ToLower(query)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range SlotIDs() {
		for _, entry := range s.slots[id] {
			if strings.Contains(strings.ToLower(entry), needle) {
				return id, true
			}
		}
	}
	return "", false
}

func (s *Store) saveLocked(slots map[string][]string) error {
	doc := document{Version: documentVersion, Slots: slots}
	return fsstore.WriteJSONAtomic(s.path, doc, fsstore.FileOptions{
		DirPerm:  0o700,
		FilePerm: 0o600,
	})
}

func (s *Store) lockPath() (string, error) {
	return fsstore.BuildLockPath(filepath.Join(filepath.Dir(s.path), ".fslocks"), "folders.main")
}

func emptySlots() map[string][]string {
	out := make(map[string][]string, slotCount)
	for _, id := range SlotIDs() {
		out[id] = []string{}
	}
	return out
}

func ensureNotCanceled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

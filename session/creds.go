package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yk2estrella/leitobot3.0/internal/fsstore"
)

// CredentialFile persists opaque credential material handed out by the
// backend. Saves are synchronous whole-file overwrites so an update is on
// disk before the event that carried it is considered handled.
type CredentialFile struct {
	path string
	mu   sync.Mutex
}

func NewCredentialFile(path string) (*CredentialFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session: credential path is required")
	}
	return &CredentialFile{path: path}, nil
}

func (f *CredentialFile) Load() ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, exists, err := fsstore.ReadText(f.path)
	if err != nil {
		return nil, false, fmt.Errorf("session: load credentials: %w", err)
	}
	if !exists {
		return nil, false, nil
	}
	return []byte(content), true, nil
}

func (f *CredentialFile) Save(material []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := fsstore.WriteTextAtomic(f.path, string(material), fsstore.FileOptions{
		DirPerm:  0o700,
		FilePerm: 0o600,
	}); err != nil {
		return fmt.Errorf("session: save credentials: %w", err)
	}
	return nil
}

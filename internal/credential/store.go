package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store persists a single credential.
type Store interface {
	// Read returns the stored credential. A stored blob that fails to parse is
	// removed and reported as absent.
	Read() (Credential, bool, error)
	Write(c Credential) error
	// Wipe removes the stored credential. Wiping an empty store is not an error.
	Wipe() error
}

// FileStore keeps the credential as JSON in a file.
type FileStore struct {
	Path   string
	Logger *slog.Logger

	mu sync.Mutex
}

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{Path: path, Logger: logger}
}

func (s *FileStore) Read() (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path) // #nosec G304 - path is operator configured
	if errors.Is(err, fs.ErrNotExist) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("read token %s: %w", s.Path, err)
	}
	c, err := decode(data)
	if err != nil {
		s.Logger.Warn("discarding unreadable token", "path", s.Path, "error", err)
		if wipeErr := s.wipe(); wipeErr != nil {
			return Credential{}, false, wipeErr
		}
		return Credential{}, false, nil
	}
	return c, true, nil
}

func (s *FileStore) Write(c Credential) error {
	data, err := encode(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp token: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp token: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace token %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wipe()
}

func (s *FileStore) wipe() error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token %s: %w", s.Path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)

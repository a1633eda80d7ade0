package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/99designs/keyring"
)

const defaultKeyringKey = "gmail-token"

// OpenKeyring opens the system keyring for service, falling back to an
// encrypted file backend under fileDir.
func OpenKeyring(service, fileDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringStore keeps the credential as a keyring item.
type KeyringStore struct {
	Ring   keyring.Keyring
	Key    string
	Logger *slog.Logger

	mu sync.Mutex
}

func NewKeyringStore(ring keyring.Keyring, key string, logger *slog.Logger) *KeyringStore {
	if key == "" {
		key = defaultKeyringKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyringStore{Ring: ring, Key: key, Logger: logger}
}

func (s *KeyringStore) Read() (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.Ring.Get(s.Key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("getting credential %q: %w", s.Key, err)
	}
	c, err := decode(item.Data)
	if err != nil {
		s.Logger.Warn("discarding unreadable keyring token", "key", s.Key, "error", err)
		if wipeErr := s.wipe(); wipeErr != nil {
			return Credential{}, false, wipeErr
		}
		return Credential{}, false, nil
	}
	return c, true, nil
}

func (s *KeyringStore) Write(c Credential) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Ring.Set(keyring.Item{Key: s.Key, Data: data, Label: "gmapi OAuth token"}); err != nil {
		return fmt.Errorf("setting credential %q: %w", s.Key, err)
	}
	return nil
}

func (s *KeyringStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wipe()
}

func (s *KeyringStore) wipe() error {
	err := s.Ring.Remove(s.Key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", s.Key, err)
	}
	return nil
}

var _ Store = (*KeyringStore)(nil)

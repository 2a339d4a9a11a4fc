package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Persisted keys.
const (
	KeyToken     = "backoffice.session.token"
	KeyExpiresAt = "backoffice.session.expiresAt"
)

// Store is a small key/value store for the session record.
type Store interface {
	// Get returns the value for key, or "" if it is not set.
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Session is a persisted login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session has reached its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ErrCorruptSession means a stored expiry could not be parsed.
var ErrCorruptSession = errors.New("stored session is corrupt")

// load reads the session record from st. ok is false when no token is
// stored.
func load(st Store) (sess Session, ok bool, err error) {
	token, err := st.Get(KeyToken)
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session token: %w", err)
	}
	if token == "" {
		return Session{}, false, nil
	}

	raw, err := st.Get(KeyExpiresAt)
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session expiry: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Session{}, false, fmt.Errorf("%w: expiry %q", ErrCorruptSession, raw)
	}
	return Session{Token: token, ExpiresAt: time.UnixMilli(ms).UTC()}, true, nil
}

func save(st Store, sess Session) error {
	if err := st.Set(KeyToken, sess.Token); err != nil {
		return fmt.Errorf("storing session token: %w", err)
	}
	if err := st.Set(KeyExpiresAt, strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("storing session expiry: %w", err)
	}
	return nil
}

func wipe(st Store) error {
	if err := st.Delete(KeyToken, KeyExpiresAt); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// MemoryStore keeps values in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// FileStore keeps values in a JSON object on disk. The file holds a bearer
// token, so it is written 0600 inside a 0700 directory.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath returns the session file under the user config directory.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "backoffice", "session.json"), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	return s.write(values)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSession, err)
	}
	return values, nil
}

// write replaces the file atomically.
func (s *FileStore) write(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("setting session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warpspeed/portal/internal/config"
	"github.com/warpspeed/portal/internal/logging"
)

// cookieRecord is the on-disk form of the credential cookie
type cookieRecord struct {
	Name     string    `yaml:"name"`
	Value    string    `yaml:"value"`
	Path     string    `yaml:"path"`
	Expires  time.Time `yaml:"expires"`
	Secure   bool      `yaml:"secure"`
	SameSite string    `yaml:"same_site"`
}

// FileStore persists the credential cookie to an encrypted file so the
// session survives restarts of the console
type FileStore struct {
	mu       sync.Mutex
	path     string
	security config.SecurityManager
	options  Options
	now      func() time.Time
	logger   *logging.Logger
}

// NewFileStore creates a store backed by path, sealed with security
func NewFileStore(path string, security config.SecurityManager, options Options) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session file path cannot be empty")
	}
	if security == nil {
		return nil, fmt.Errorf("security manager cannot be nil")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &FileStore{
		path:     path,
		security: security,
		options:  options.normalized(),
		now:      time.Now,
		logger:   logging.GetSessionLogger(),
	}, nil
}

// Get returns the persisted credential. Storage failures are logged and
// reported as absence.
func (s *FileStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Session file unreadable, treating as signed out", "path", s.path, "error", err)
		}
		return "", false
	}

	if record.Value == "" {
		return "", false
	}
	if !record.Expires.IsZero() && !s.now().Before(record.Expires) {
		s.logger.Debug("Session credential expired", "expires", record.Expires)
		return "", false
	}
	return record.Value, true
}

// Set persists token with a fresh retention window
func (s *FileStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cookie := s.options.Cookie(token, s.now())
	record := cookieRecord{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Path:     cookie.Path,
		Expires:  cookie.Expires,
		Secure:   cookie.Secure,
		SameSite: "strict",
	}

	data, err := yaml.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	sealed, err := s.security.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt session record: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.logger.LogSessionChange("set", "credential stored")
	return nil
}

// Clear removes the session file; a missing file is not an error
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	s.logger.LogSessionChange("clear", "credential removed")
	return nil
}

// Has reports whether Get would return a credential
func (s *FileStore) Has() bool {
	_, ok := s.Get()
	return ok
}

func (s *FileStore) read() (*cookieRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	plain, err := s.security.Decrypt(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session file: %w", err)
	}

	var record cookieRecord
	if err := yaml.Unmarshal(plain, &record); err != nil {
		return nil, fmt.Errorf("failed to parse session record: %w", err)
	}
	return &record, nil
}

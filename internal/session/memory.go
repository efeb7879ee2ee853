package session

import (
	"net/http"
	"sync"
	"time"
)

// MemoryStore keeps the credential in process memory and enforces the
// retention window against an injectable clock
type MemoryStore struct {
	mu      sync.RWMutex
	options Options
	now     func() time.Time
	cookie  *http.Cookie
}

// NewMemoryStore creates an empty store; a nil clock uses time.Now
func NewMemoryStore(options Options, clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{options: options.normalized(), now: clock}
}

// Get returns the credential unless absent or expired
func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cookie == nil || s.cookie.Value == "" || expired(s.cookie, s.now()) {
		return "", false
	}
	return s.cookie.Value, true
}

// Set replaces the credential and restarts the retention window
func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cookie = s.options.Cookie(token, s.now())
	return nil
}

// Clear drops the credential
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cookie = nil
	return nil
}

// Has reports whether Get would return a credential
func (s *MemoryStore) Has() bool {
	_, ok := s.Get()
	return ok
}

// Cookie returns a copy of the stored cookie, or nil
func (s *MemoryStore) Cookie() *http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cookie == nil {
		return nil
	}
	c := *s.cookie
	return &c
}

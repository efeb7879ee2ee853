package session

import (
	"net/http"
	"sync"
	"time"
)

// CookieStore is a request-scoped store over an HTTP exchange. Reads come from
// the incoming request; writes emit Set-Cookie on the response and are visible
// to later reads within the same request.
type CookieStore struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	r       *http.Request
	options Options
	now     func() time.Time

	overridden bool
	value      string
}

// NewCookieStore binds a store to one request/response pair
func NewCookieStore(w http.ResponseWriter, r *http.Request, options Options) *CookieStore {
	return &CookieStore{w: w, r: r, options: options.normalized(), now: time.Now}
}

// Get returns the credential from this request
func (s *CookieStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overridden {
		return s.value, s.value != ""
	}
	if s.r == nil {
		return "", false
	}

	c, err := s.r.Cookie(s.options.Name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set emits the credential cookie
func (s *CookieStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	http.SetCookie(s.w, s.options.Cookie(token, s.now()))
	s.overridden = true
	s.value = token
	return nil
}

// Clear emits an expiring cookie
func (s *CookieStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	http.SetCookie(s.w, s.options.ExpiredCookie())
	s.overridden = true
	s.value = ""
	return nil
}

// Has reports whether Get would return a credential
func (s *CookieStore) Has() bool {
	_, ok := s.Get()
	return ok
}

// Package session persists the bearer credential that authenticates portal
// requests. All stores share the same cookie attributes: a named credential
// with a seven day retention window, same-site strict, secure in production.
package session

import (
	"net/http"
	"time"

	"github.com/warpspeed/portal/internal/interfaces"
)

// Cookie attribute defaults
const (
	CookieName    = "auth_token"
	CookiePath    = "/"
	DefaultMaxAge = 7 * 24 * time.Hour
)

var (
	_ interfaces.SessionStore = (*MemoryStore)(nil)
	_ interfaces.SessionStore = (*FileStore)(nil)
	_ interfaces.SessionStore = (*CookieStore)(nil)
)

// Options describes how a credential is retained
type Options struct {
	Name     string
	Path     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// DefaultOptions returns the cookie attributes for the given deployment
func DefaultOptions(production bool) Options {
	return Options{
		Name:     CookieName,
		Path:     CookiePath,
		MaxAge:   DefaultMaxAge,
		Secure:   production,
		SameSite: http.SameSiteStrictMode,
	}
}

func (o Options) normalized() Options {
	if o.Name == "" {
		o.Name = CookieName
	}
	if o.Path == "" {
		o.Path = CookiePath
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteStrictMode
	}
	return o
}

// Cookie builds the cookie carrying token, issued at now
func (o Options) Cookie(token string, now time.Time) *http.Cookie {
	o = o.normalized()
	return &http.Cookie{
		Name:     o.Name,
		Value:    token,
		Path:     o.Path,
		Expires:  now.Add(o.MaxAge).UTC(),
		MaxAge:   int(o.MaxAge / time.Second),
		Secure:   o.Secure,
		HttpOnly: true,
		SameSite: o.SameSite,
	}
}

// ExpiredCookie builds a cookie that instructs the client to drop the credential
func (o Options) ExpiredCookie() *http.Cookie {
	o = o.normalized()
	return &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   o.Secure,
		HttpOnly: true,
		SameSite: o.SameSite,
	}
}

// expired reports whether a cookie issued with these options has lapsed at now
func expired(c *http.Cookie, now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

package web

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/warpspeed/portal/internal/logging"
	"github.com/warpspeed/portal/internal/session"
)

const requestIDHeader = "X-Request-ID"

// RequestID propagates an incoming X-Request-ID or assigns a new one, and
// stores it on the request context so outbound API calls reuse it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestLogger logs one line per handled request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.GetWebLogger().WithContext(c.Request.Context()).
			LogHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Guard redirects requests without a session cookie to the login page. Paths
// under any of publicPrefixes pass through untouched.
func Guard(publicPrefixes []string, options session.Options) gin.HandlerFunc {
	name := options.Name
	if name == "" {
		name = session.CookieName
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range publicPrefixes {
			if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
				c.Next()
				return
			}
		}

		if cookie, err := c.Request.Cookie(name); err == nil && cookie.Value != "" {
			c.Next()
			return
		}

		c.Redirect(http.StatusFound, loginURL(c.Request.URL.RequestURI()))
		c.Abort()
	}
}

// loginURL builds the login redirect carrying the original destination
func loginURL(redirect string) string {
	if redirect == "" || redirect == "/" {
		return "/login?redirect=" + url.QueryEscape("/")
	}
	return "/login?redirect=" + url.QueryEscape(redirect)
}

// safeRedirect accepts only same-origin absolute paths
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

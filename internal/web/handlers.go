package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/warpspeed/portal/internal/apierr"
	"github.com/warpspeed/portal/internal/interfaces"
	"github.com/warpspeed/portal/internal/logging"
)

type loginPage struct {
	Redirect string
	Email    string
	Notice   string
	Error    string
}

type profilePage struct {
	User *interfaces.User
}

func (s *Server) showLogin(c *gin.Context) {
	page := loginPage{Redirect: safeRedirect(c.Query("redirect"))}
	if c.Query("signed_out") != "" {
		page.Notice = "You have been signed out."
	}
	c.HTML(http.StatusOK, "login", page)
}

func (s *Server) requestLink(c *gin.Context) {
	page := loginPage{
		Redirect: safeRedirect(c.PostForm("redirect")),
		Email:    strings.TrimSpace(c.PostForm("email")),
	}
	if page.Email == "" {
		page.Error = "Email is required"
		c.HTML(http.StatusBadRequest, "login", page)
		return
	}

	service, _, err := s.services(c)
	if err != nil {
		s.internalError(c, err)
		return
	}

	resp, err := service.RequestMagicLink(c.Request.Context(), page.Email)
	if err != nil {
		page.Error = apierr.Message(err)
		c.HTML(statusFor(err), "login", page)
		return
	}

	page.Notice = resp.Message
	if page.Notice == "" {
		page.Notice = "Check your inbox for a sign-in link."
	}
	c.HTML(http.StatusOK, "login", page)
}

func (s *Server) callback(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	redirect := safeRedirect(c.Query("redirect"))
	if token == "" {
		c.Redirect(http.StatusFound, loginURL(redirect))
		return
	}

	service, _, err := s.services(c)
	if err != nil {
		s.internalError(c, err)
		return
	}

	if _, err := service.VerifyMagicLink(c.Request.Context(), token); err != nil {
		logging.GetWebLogger().WithContext(c.Request.Context()).Warn("Magic link verification failed", "error", apierr.Message(err))
		c.HTML(statusFor(err), "login", loginPage{Redirect: redirect, Error: apierr.Message(err)})
		return
	}

	c.Redirect(http.StatusFound, redirect)
}

func (s *Server) logout(c *gin.Context) {
	service, _, err := s.services(c)
	if err != nil {
		s.internalError(c, err)
		return
	}

	if err := service.Logout(c.Request.Context()); err != nil {
		logging.GetWebLogger().WithContext(c.Request.Context()).Warn("Remote logout failed", "error", apierr.Message(err))
	}
	c.Redirect(http.StatusFound, "/login?signed_out=1")
}

func (s *Server) profile(c *gin.Context) {
	service, store, err := s.services(c)
	if err != nil {
		s.internalError(c, err)
		return
	}

	user, err := service.GetUserProfile(c.Request.Context())
	if err != nil {
		if apierr.IsUnauthorized(err) || !store.Has() {
			c.Redirect(http.StatusFound, loginURL(c.Request.URL.RequestURI()))
			return
		}
		c.HTML(statusFor(err), "error", gin.H{"Message": apierr.Message(err)})
		return
	}

	c.HTML(http.StatusOK, "profile", profilePage{User: user})
}

// sessionStatus reports whether the cookie still authenticates
func (s *Server) sessionStatus(c *gin.Context) {
	service, _, err := s.services(c)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": service.Authenticate(c.Request.Context())})
}

func (s *Server) internalError(c *gin.Context, err error) {
	logging.GetWebLogger().WithContext(c.Request.Context()).Error("Failed to build request pipeline", "error", err.Error())
	c.HTML(http.StatusInternalServerError, "error", gin.H{"Message": "Internal error"})
}

// statusFor maps a pipeline error to the status shown to the browser
func statusFor(err error) int {
	switch apierr.KindOf(err) {
	case apierr.KindNetwork:
		if apierr.IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case apierr.KindUnauthorized:
		return http.StatusUnauthorized
	case apierr.KindAPI:
		if code := apierr.StatusCode(err); code >= 400 && code < 500 {
			return code
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

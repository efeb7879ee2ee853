// Package web serves the browser portal. Each request talks to the API through
// a request pipeline bound to the caller's session cookie. The pipelines share
// one validator that collapses concurrent checks of the same credential, so a
// browser session sees a single recovery however many requests it has open.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warpspeed/portal/internal/auth"
	"github.com/warpspeed/portal/internal/config"
	"github.com/warpspeed/portal/internal/logging"
	"github.com/warpspeed/portal/internal/protocol"
	"github.com/warpspeed/portal/internal/session"
)

const (
	shutdownTimeout = 10 * time.Second
	userAgent       = "warpspeed-portal-web"
)

// PublicPrefixes are reachable without a session
var PublicPrefixes = []string{"/login", "/auth/callback", "/healthz"}

// Server is the web portal
type Server struct {
	cfg        *config.Config
	options    session.Options
	httpClient *http.Client
	validator  *protocol.SharedValidator
	engine     *gin.Engine
}

// NewServer builds the portal router for cfg. httpClient may be nil.
func NewServer(cfg *config.Config, httpClient *http.Client) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if httpClient == nil {
		httpClient = protocol.NewHTTPClient()
	}

	validator, err := protocol.NewHTTPValidator(cfg.APIBaseURL, httpClient, userAgent)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		options:    session.DefaultOptions(cfg.IsProduction()),
		httpClient: httpClient,
		validator:  protocol.NewSharedValidator(validator),
	}
	s.engine = s.router()
	return s, nil
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("portal").Parse(pageTemplates)))
	r.Use(gin.Recovery(), RequestID(), RequestLogger(), Guard(PublicPrefixes, s.options))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/login", s.showLogin)
	r.POST("/login", s.requestLink)
	r.GET("/auth/callback", s.callback)
	r.POST("/logout", s.logout)
	r.GET("/", s.profile)
	r.GET("/api/session", s.sessionStatus)

	return r
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Web.Listen until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Web.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.GetWebLogger().Info("Web portal listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

// services binds an auth service to the caller's cookie
func (s *Server) services(c *gin.Context) (*auth.Service, *session.CookieStore, error) {
	store := session.NewCookieStore(c.Writer, c.Request, s.options)

	logger := logging.GetWebLogger().WithContext(c.Request.Context())
	clients, err := protocol.NewClients(s.cfg, store,
		protocol.WithHTTPClient(s.httpClient),
		protocol.WithUserAgent(userAgent),
		protocol.WithValidator(s.validator),
		protocol.WithInvalidationHandler(func(err error) {
			logger.LogSessionChange("invalidated", err.Error())
		}),
	)
	if err != nil {
		return nil, nil, err
	}

	service, err := auth.NewService(clients.Standard, store)
	if err != nil {
		return nil, nil, err
	}
	return service, store, nil
}

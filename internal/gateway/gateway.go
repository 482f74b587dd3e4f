// Package gateway runs the local development gateway: it owns the
// process-wide session and fronts the portal backend so a plain browser
// front-end gets guarded routes and automatic bearer injection without
// holding tokens itself.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rdportal/client/internal/apiclient"
	"rdportal/client/internal/config"
	"rdportal/client/internal/guard"
	"rdportal/client/internal/middleware"
	"rdportal/client/internal/session"
	"rdportal/client/internal/tokenstore"
)

type Gateway struct {
	engine  *gin.Engine
	server  *http.Server
	manager *session.Manager
	tokens  tokenstore.Store
	log     zerolog.Logger
	cfg     *config.AppConfig
}

func New(cfg *config.AppConfig, manager *session.Manager, tokens tokenstore.Store, log zerolog.Logger) (*Gateway, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	target, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.Gateway.AllowCORSOrigins),
	)

	g := &Gateway{
		engine:  engine,
		manager: manager,
		tokens:  tokens,
		log:     log,
		cfg:     cfg,
	}

	routeGuard := guard.New(cfg.Gateway.LoginPath)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET(cfg.Gateway.LoginPath, g.loginHint)

	sess := engine.Group("/session")
	sess.POST("/login", g.login)
	sess.POST("/logout", g.logout)
	sess.GET("/whoami", g.whoami)

	proxy := g.newProxy(target)
	api := engine.Group("/api")
	api.Use(guard.Middleware(manager, routeGuard, guard.Requirement{}))
	api.Any("/*path", func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	})

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		IdleTimeout:  cfg.Gateway.IdleTimeout,
	}

	return g, nil
}

// Handler exposes the engine for tests.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

func (g *Gateway) Start() error {
	g.log.Info().Str("addr", g.server.Addr).Msg("gateway starting")

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	g.log.Info().Msg("gateway shutting down")
	return g.server.Shutdown(ctx)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}

	err := g.manager.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(loginStatus(err), gin.H{"error": loginMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": g.manager.CurrentUser()})
}

func (g *Gateway) logout(c *gin.Context) {
	if err := g.manager.Logout(c.Request.Context()); err != nil {
		g.log.Warn().Err(err).Msg("logout cleanup incomplete")
	}
	c.Status(http.StatusNoContent)
}

func (g *Gateway) whoami(c *gin.Context) {
	if err := g.manager.WaitReady(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session_not_ready"})
		return
	}
	if !g.manager.IsAuthenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": g.manager.CurrentUser()})
}

func (g *Gateway) loginHint(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "authenticate via POST /session/login",
		"redirect": c.Query("redirect"),
	})
}

// newProxy forwards guarded /api/* traffic to the backend, rewriting the
// prefix onto the configured base path and injecting the bearer token from
// the shared store. A 401 on a forwarded request that carried a token means
// the backend revoked the session: the store is cleared through the shared
// handle and the manager drops its user, same as the API client's own 401
// reaction. Requests forwarded without a token are exempt.
func (g *Gateway) newProxy(target *url.URL) *httputil.ReverseProxy {
	basePath := strings.TrimRight(target.Path, "/")

	return &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.URL.Path = basePath + strings.TrimPrefix(req.URL.Path, "/api")
			req.Host = target.Host

			token, err := g.tokens.Access(req.Context())
			if err != nil {
				g.log.Warn().Err(err).Msg("token read failed, proxying unauthenticated")
				return
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode != http.StatusUnauthorized {
				return nil
			}
			if resp.Request == nil || resp.Request.Header.Get("Authorization") == "" {
				return nil
			}
			if err := g.tokens.Clear(resp.Request.Context()); err != nil {
				g.log.Error().Err(err).Msg("clear token store after proxied 401 failed")
			}
			g.manager.Invalidate()
			g.log.Debug().Msg("session invalidated by proxied 401")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.log.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

func loginStatus(err error) int {
	var validation *apiclient.ValidationError
	var network *apiclient.NetworkError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, apiclient.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.As(err, &network):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func loginMessage(err error) string {
	var network *apiclient.NetworkError
	switch {
	case errors.Is(err, apiclient.ErrInvalidCredentials):
		return "invalid username or password"
	case errors.As(err, &network):
		return "service unavailable"
	default:
		return err.Error()
	}
}

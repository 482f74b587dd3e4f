// Package devstub is an offline stand-in for the portal backend. It exists
// for development and integration tests only: real deployments point the
// client at the production API. The stub implements exactly the endpoints
// and response shapes the client consumes, nothing more.
package devstub

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rdportal/client/internal/config"
	"rdportal/client/internal/ids"
	"rdportal/client/internal/middleware"
	"rdportal/client/internal/models"
)

type Server struct {
	cfg      config.StubConfig
	log      zerolog.Logger
	users    *Directory
	sessions SessionStore
	engine   *gin.Engine
}

func NewServer(cfg config.StubConfig, users *Directory, sessions SessionStore, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
	)

	s := &Server{
		cfg:      cfg,
		log:      log,
		users:    users,
		sessions: sessions,
		engine:   engine,
	}

	engine.GET("/healthz", s.health)

	v1 := engine.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/login", s.login)
		auth.POST("/refresh", s.refresh)
		auth.POST("/logout", s.logout)

		users := v1.Group("/users")
		users.Use(s.authRequired())
		users.GET("/me", s.me)
	}

	return s
}

// Handler exposes the engine for httptest and for the binary's http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "username and password required"})
		return
	}

	user, ok := s.users.authenticate(req.Username, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid credentials"})
		return
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "token generation failed"})
		return
	}

	session := Session{
		ID:               ids.New(),
		UserID:           user.ID,
		RefreshTokenHash: refreshHash,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.sessions.Create(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "session store failed"})
		return
	}
	if err := s.sessions.PruneUser(c.Request.Context(), user.ID, s.cfg.MaxSessions); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("prune sessions failed")
	}

	accessToken, err := generateAccessToken(s.cfg.JWTSecret, user.ID, session.ID, s.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int64(s.cfg.AccessTTL.Seconds()),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "refresh_token required"})
		return
	}

	session, err := s.sessions.FindByRefreshHash(c.Request.Context(), hashRefreshToken(req.RefreshToken))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid refresh token"})
		return
	}

	accessToken, err := generateAccessToken(s.cfg.JWTSecret, session.UserID, session.ID, s.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": accessToken})
}

// logout is deliberately lenient: with a valid bearer the session is
// revoked, without one it still answers 204 so client teardown never
// depends on backend state.
func (s *Server) logout(c *gin.Context) {
	if claims, ok := s.bearerClaims(c); ok {
		if err := s.sessions.Delete(c.Request.Context(), claims.SessionID); err != nil {
			s.log.Warn().Err(err).Msg("delete session on logout failed")
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	userVal, exists := c.Get("current_user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unauthorized"})
		return
	}
	user, ok := userVal.(*models.UserProfile)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    user,
	})
}

func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := s.bearerClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "missing or invalid token"})
			return
		}

		_, err := s.sessions.Get(c.Request.Context(), claims.SessionID)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				s.log.Error().Err(err).Msg("session lookup failed")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "session revoked"})
			return
		}

		user, found := s.users.byID(claims.UserID)
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unknown user"})
			return
		}

		c.Set("current_user", user)
		c.Next()
	}
}

func (s *Server) bearerClaims(c *gin.Context) (*AccessClaims, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, false
	}
	claims, err := parseAccessToken(strings.TrimPrefix(header, "Bearer "), s.cfg.JWTSecret)
	if err != nil {
		return nil, false
	}
	return claims, true
}

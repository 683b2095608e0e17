package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-presence/internal/auth"
	"github.com/vovakirdan/wirechat-presence/internal/config"
	"github.com/vovakirdan/wirechat-presence/internal/core"
	"github.com/vovakirdan/wirechat-presence/internal/metrics"
)

// Hub is the part of core.Hub the transport drives.
type Hub interface {
	Connect(ctx context.Context, s *core.Session) error
	Disconnect(ctx context.Context, s *core.Session) error
	Dispatch(ctx context.Context, cmd *core.Command) error
	OnlineUsers(ctx context.Context) ([]string, error)
}

// Deps groups the collaborators of the HTTP server.
type Deps struct {
	Hub Hub
	// Authenticator may be nil when no JWT secret is configured.
	Authenticator *auth.Authenticator
	Metrics       metrics.Recorder
	// Gatherer backs /metrics; the route is not registered when nil.
	Gatherer prometheus.Gatherer
}

// NewServer builds the HTTP server: health, WebSocket and API routes.
func NewServer(deps Deps, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(deps, cfg, logger)))

	api := router.Group("/api")
	if cfg.Auth.JWTRequired && deps.Authenticator != nil {
		api.Use(AuthMiddleware(deps.Authenticator, cfg.Auth.CookieName, logger))
	}
	handlers := NewAPIHandlers(deps.Hub, logger)
	api.GET("/online", handlers.Online)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

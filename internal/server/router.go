// Package server exposes the authorization server's HTTP surface: the
// OAuth callback, the data custodian notification endpoint, and a
// JWT-protected admin API for client registration and authorization
// lifecycle management.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/energyos/espi-authz/internal/authz"
	"github.com/energyos/espi-authz/internal/common/config"
	"github.com/energyos/espi-authz/internal/importer"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/energyos/espi-authz/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server wires the HTTP handlers to the flow service and its stores.
type Server struct {
	cfg      *config.AuthServerConfig
	logger   *zap.Logger
	flow     *authz.Service
	store    storage.Store
	importer *importer.Importer
	metrics  *metrics.Metrics
	jwt      *JWTService

	httpServer *http.Server
}

// NewServer assembles the router. The importer and metrics are optional;
// when the importer is nil the notification endpoint answers 503.
func NewServer(
	cfg *config.AuthServerConfig,
	logger *zap.Logger,
	flow *authz.Service,
	store storage.Store,
	imp *importer.Importer,
	m *metrics.Metrics,
) (*Server, error) {
	jwtService, err := NewJWTService(&cfg.Admin)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		flow:     flow,
		store:    store,
		importer: imp,
		metrics:  m,
		jwt:      jwtService,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		router.Use(m.Middleware())
	}
	s.registerRoutes(router)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.Health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// Inbound redirect from the data custodian.
	router.GET(s.cfg.Authz.CallbackPath, s.Callback)

	// Batch-ready notifications.
	router.POST("/espi/1_1/notify", s.Notify)

	api := router.Group("/api")
	api.POST("/login", s.Login)

	protected := api.Group("", JWTAuthMiddleware(s.jwt))
	protected.GET("/clients", s.ListClients)
	protected.POST("/clients", s.SaveClient)
	protected.GET("/clients/:clientId", s.GetClient)
	protected.DELETE("/clients/:id", s.DeleteClient)
	protected.POST("/authorizations", s.BeginAuthorization)
	protected.GET("/authorizations/:id", s.GetAuthorization)
	protected.POST("/authorizations/:id/revoke", s.RevokeAuthorization)
}

// Health reports liveness.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler exposes the assembled router, used by the HTTP tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

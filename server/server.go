// Package server exposes workflows over HTTP: share links, the template
// catalog, synchronous runs and websocket run streaming.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/songzhibin97/gkit/generator"
	"go.uber.org/zap"

	"github.com/songzhibin97/mediaflow/metrics"
	"github.com/songzhibin97/mediaflow/storage"
	"github.com/songzhibin97/mediaflow/templates"
	"github.com/songzhibin97/mediaflow/workflow"
)

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	server     *http.Server
	engine     *workflow.Engine
	store      storage.Storage
	templates  *templates.Registry
	ids        generator.Generator
	metrics    *metrics.Collector
	baseURL    string
	runTimeout time.Duration
	logger     *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	// Addr is the listen address, such as ":8080".
	Addr      string
	BaseURL   string
	Engine    *workflow.Engine
	Storage   storage.Storage
	Templates *templates.Registry
	// IDs generates share link ids.
	IDs generator.Generator
	// Metrics counts share links. Optional.
	Metrics *metrics.Collector
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer   prometheus.Gatherer
	RunTimeout time.Duration
	Logger     *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.Templates == nil {
		return nil, errors.New("template registry is required")
	}
	if cfg.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		router:     router,
		engine:     cfg.Engine,
		store:      cfg.Storage,
		templates:  cfg.Templates,
		ids:        cfg.IDs,
		metrics:    cfg.Metrics,
		baseURL:    cfg.BaseURL,
		runTimeout: cfg.RunTimeout,
		logger:     logger,
	}

	s.setupRoutes(cfg.Gatherer)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/health", s.handleHealth)

	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	} else {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Share link landing route.
	s.router.GET("/workflow", s.handleOpenLink)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/workflows/share", s.handleShare)
		v1.GET("/workflows/shared/:id", s.handleGetShared)

		v1.GET("/templates", s.handleListTemplates)
		v1.GET("/templates/:id", s.handleGetTemplate)

		v1.POST("/runs", s.handleRun)
		v1.GET("/runs/stream", s.handleRunStream)
		v1.GET("/runs/:id", s.handleGetRun)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// PruneLoop deletes run records older than retention every interval until ctx is done.
func (s *Server) PruneLoop(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.store.PruneRuns(ctx, now.Add(-retention).UnixMilli())
			if err != nil {
				s.logger.Error("failed to prune runs", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("pruned runs", zap.Int("count", n))
			}
		}
	}
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

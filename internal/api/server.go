// Package api implements the persistence and report HTTP service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/export"
	"github.com/oscillometry-report-server/internal/middleware"
	"github.com/oscillometry-report-server/internal/service"
)

const version = "1.0.0"

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	router        *gin.Engine
	server        *http.Server

	store    domain.PatientStore
	engine   *service.DerivationEngine
	exporter *export.Exporter
	events   *EventHub
	metrics  *Metrics
	log      *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, store domain.PatientStore, engine *service.DerivationEngine, exporter *export.Exporter, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := NewMetrics()
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(metrics.Middleware())
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server := &Server{
		configManager: configManager,
		router:        router,
		store:         store,
		engine:        engine,
		exporter:      exporter,
		events:        NewEventHub(cfg.Server.AllowedOrigins, logger),
		metrics:       metrics,
		log:           logger,
	}

	// Setup routes
	server.setupRoutes(cfg.Server.StaticDir)

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Events returns the change feed hub.
func (s *Server) Events() *EventHub {
	return s.events
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.events.Close()
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(staticDir string) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/patients", s.handleListPatients)
		api.GET("/patients/events", s.events.Serve)
		api.GET("/patients/:id", s.handleGetPatient)
		api.GET("/patients/:id/report", s.handlePatientReport)
		api.GET("/patients/:id/export", s.handleExportPatient)
		api.POST("/patients", s.handleSavePatient)
		api.DELETE("/patients/:id", s.handleDeletePatient)
		api.DELETE("/clear_patients", s.handleClearPatients)
		api.POST("/report/compute", s.handleComputeReport)
	}

	if staticDir != "" {
		files := http.FileServer(http.Dir(staticDir))
		s.router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.Method != http.MethodGet {
				s.respondError(c, http.StatusNotFound, domain.CodeNotFound, "route not found", "")
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	storage := "ok"
	if _, err := s.store.List(c.Request.Context()); err != nil {
		s.log.WithError(err).Warn("Health check could not reach the patient store")
		status, code, storage = "degraded", http.StatusServiceUnavailable, err.Error()
	}

	c.JSON(code, gin.H{
		"status":    status,
		"storage":   storage,
		"clients":   s.events.Clients(),
		"timestamp": time.Now(),
		"version":   version,
	})
}

// respondError writes an APIError body and aborts the request.
func (s *Server) respondError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.RequestIDKey)))
}

// respondStoreError maps a store failure to a response; ErrNotFound becomes a 404 with notFound.
func (s *Server) respondStoreError(c *gin.Context, err error, action, notFound string) {
	if errors.Is(err, domain.ErrNotFound) {
		s.respondError(c, http.StatusNotFound, domain.CodeNotFound, notFound, "")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.respondError(c, http.StatusGatewayTimeout, domain.CodeStorageError, "storage timed out", action)
		return
	}

	s.log.WithError(err).WithFields(logrus.Fields{
		"action":     action,
		"request_id": c.GetString(middleware.RequestIDKey),
	}).Error("Patient store operation failed")
	_ = c.Error(err)
	s.respondError(c, http.StatusInternalServerError, domain.CodeStorageError, "storage error", action)
}

// Package api is the dashboard backend: CSV upload and processing, job
// status, transactions, vendors and stats over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mbirkedal/vendorledger/internal/infrastructure/storage"
	"github.com/mbirkedal/vendorledger/internal/jobs"
	"github.com/mbirkedal/vendorledger/internal/pipeline"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	UploadDir      string // temp dir for uploaded CSVs; empty uses os.TempDir
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	processor  *pipeline.Processor
	jobStore   jobs.Store
	queue      *jobs.Queue
}

// NewServer creates the API server. The queue must already be started; the
// server only enqueues.
func NewServer(cfg Config, repo storage.Repository, processor *pipeline.Processor, jobStore jobs.Store, queue *jobs.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		config:    cfg,
		router:    router,
		logger:    logger,
		repo:      repo,
		processor: processor,
		jobStore:  jobStore,
		queue:     queue,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := s.router.Group("/api")
	{
		api.POST("/process", s.startProcessing)
		api.GET("/jobs", s.listJobs)
		api.GET("/jobs/:id", s.getJob)

		api.GET("/transactions", s.listTransactions)
		api.DELETE("/transactions", s.deleteTransactions)

		api.GET("/vendors", s.listVendors)
		api.PUT("/vendors/:id", s.updateVendor)
		api.DELETE("/vendors", s.deleteVendors)
		api.GET("/vendors/:id/enrichments", s.listEnrichments)

		api.GET("/stats", s.getStats)
		api.POST("/reset", s.resetDatabase)
	}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

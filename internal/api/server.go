package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/cache"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Server is the operational HTTP surface: health and outbox statistics.
// The catalog's own REST API lives elsewhere.
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	db         *gorm.DB
	redisCache *cache.RedisCache
	outbox     *repositories.OutboxRepository
}

// NewServer creates a new ops HTTP server
func NewServer(cfg config.Config, db *gorm.DB, redisCache *cache.RedisCache, outbox *repositories.OutboxRepository) *Server {
	server := &Server{
		config:     cfg,
		db:         db,
		redisCache: redisCache,
		outbox:     outbox,
	}

	router := server.setupRouter()
	server.router = router

	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/stats/outbox", s.handleOutboxStats)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"database": true, "redis": true}
	healthy := true

	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		checks["database"] = false
		healthy = false
	}

	if s.redisCache != nil {
		if err := s.redisCache.Ping(c.Request.Context()); err != nil {
			checks["redis"] = false
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": healthy, "details": checks})
}

func (s *Server) handleOutboxStats(c *gin.Context) {
	stats, err := s.outbox.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read outbox stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting ops HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("Ops HTTP server shut down")
	return nil
}

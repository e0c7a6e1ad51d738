// Package control provides the control API: runtime tape insert/eject and
// operational endpoints, served on a dedicated listener away from proxied
// traffic.
package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tapedeck/tapedeck/internal/health"
	"github.com/tapedeck/tapedeck/internal/observability"
	"github.com/tapedeck/tapedeck/internal/tape"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the control API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	deck       *tape.Deck
	checker    *health.Checker
	logger     observability.Logger
}

// ServerConfig holds configuration for the control server.
type ServerConfig struct {
	Address string
	Port    int
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthChecker sets the health checker backing the probe endpoints.
func WithHealthChecker(checker *health.Checker) Option {
	return func(s *Server) {
		s.checker = checker
	}
}

// NewServer creates the control API server.
func NewServer(cfg ServerConfig, deck *tape.Deck, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:  gin.New(),
		deck:    deck,
		checker: health.NewChecker("dev"),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(gin.Recovery())
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:           s.engine,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// insertRequest is the payload for tape insertion.
type insertRequest struct {
	Name     string `json:"name" binding:"required"`
	ReadOnly bool   `json:"readOnly"`
}

// registerRoutes wires the control endpoints.
func (s *Server) registerRoutes() {
	s.engine.GET("/health", gin.WrapF(s.checker.HealthHandler()))
	s.engine.GET("/ready", gin.WrapF(s.checker.ReadinessHandler()))

	s.engine.GET("/tape", s.handleStatus)
	s.engine.PUT("/tape", s.handleInsert)
	s.engine.DELETE("/tape", s.handleEject)
}

// handleStatus reports the deck state.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deck.Status())
}

// handleInsert loads and inserts the named tape.
func (s *Server) handleInsert(c *gin.Context) {
	var req insertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.deck.Insert(c.Request.Context(), req.Name, req.ReadOnly); err != nil {
		if errors.Is(err, tape.ErrInvalidTapeName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("tape insert failed",
			observability.String("tape", req.Name),
			observability.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.deck.Status())
}

// handleEject persists and removes the active tape.
func (s *Server) handleEject(c *gin.Context) {
	if err := s.deck.Eject(c.Request.Context()); err != nil {
		if errors.Is(err, tape.ErrNoActiveTape) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("tape eject failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.deck.Status())
}

// Handler returns the underlying handler, used in tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving the control API. It returns once the listener stops.
func (s *Server) Start() error {
	s.logger.Info("starting control server",
		observability.String("address", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the control server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Package quoteapi serves pool state and trade quotes over HTTP.
package quoteapi

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultRequestTimeout = 10 * time.Second

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolSource reads the pool state at a block; a nil block means the latest one.
type PoolSource interface {
	Pool(ctx context.Context, block *big.Int) (simplestamm.Pool, error)
}

// Config holds the dependencies of a Server.
type Config struct {
	Source         PoolSource
	Logger         Logger
	Registry       prometheus.Registerer
	RequestTimeout time.Duration
	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
}

func (c *Config) validate() error {
	if c.Source == nil {
		return errors.New("config: Source cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.RequestTimeout < 0 {
		return errors.New("config: RequestTimeout cannot be negative")
	}
	return nil
}

// Server is the HTTP quote API.
type Server struct {
	source  PoolSource
	log     Logger
	timeout time.Duration
	metrics *Metrics
	router  *gin.Engine
	server  *http.Server

	metricsHandler http.Handler
}

// NewServer creates a new API server.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		source:  cfg.Source,
		log:     cfg.Logger,
		timeout: cfg.RequestTimeout,
		metrics: NewMetrics(cfg.Registry),
		router:  router,

		metricsHandler: cfg.MetricsHandler,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Handler returns the router, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Logging and metrics
	s.router.Use(func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		s.log.Debug("API request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		)
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.metrics.duration.WithLabelValues(route).Observe(duration.Seconds())
	})

	// Timeout
	s.router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	v1 := s.router.Group("/v1")
	{
		v1.GET("/pool", s.handlePool)

		quote := v1.Group("/quote")
		quote.GET("/swap", s.handleQuoteSwap)
		quote.GET("/swap-input", s.handleQuoteSwapInput)
		quote.GET("/add-liquidity", s.handleQuoteAddLiquidity)
		quote.GET("/remove-liquidity", s.handleQuoteRemoveLiquidity)
	}
}

// Start listens on addr and serves until Stop is called.
func (s *Server) Start(addr string) error {
	s.log.Info("Starting quote API server", "address", addr)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start quote API server: %w", err)
	}
	return nil
}

// Stop stops the server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Stopping quote API server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Package http serves the scoring, safety and drift operations over a JSON
// API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Dudley70/compression-framework/internal/analyzer"
	"github.com/Dudley70/compression-framework/internal/audit"
	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
	"github.com/Dudley70/compression-framework/internal/telemetry"
)

// AuditLog is the read side of the verdict log.
type AuditLog interface {
	List(ctx context.Context, limit int) ([]audit.Entry, error)
	Counts(ctx context.Context) (map[safety.Recommendation]int, error)
}

// Services are the operations the API exposes. Audit is optional; the
// audit route is only registered when it is set.
type Services struct {
	Scorer     scoring.Scorer
	Validator  *safety.Validator
	Analyzer   *analyzer.Analyzer
	Drift      *drift.Detector
	Compressor *compression.Service
	Audit      AuditLog
}

func (s Services) validate() error {
	switch {
	case s.Scorer == nil:
		return errors.New("scorer is required")
	case s.Validator == nil:
		return errors.New("validator is required")
	case s.Analyzer == nil:
		return errors.New("analyzer is required")
	case s.Drift == nil:
		return errors.New("drift detector is required")
	case s.Compressor == nil:
		return errors.New("compression service is required")
	}
	return nil
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	RateLimit       float64 // requests per second per client, 0 disables
	Burst           int
	MaxBodyBytes    int64 // 0 disables
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the listen address and limits used when none are
// configured.
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            8787,
		RateLimit:       20,
		Burst:           40,
		MaxBodyBytes:    4 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	svc     Services
	logger  *logging.Logger
	config  *Config
	metrics *requestMetrics
	prom    *promMetrics

	version         string
	defaultRewriter string
	health          func() telemetry.HealthStatus
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	meterProvider   metric.MeterProvider
	version         string
	defaultRewriter string
	health          func() telemetry.HealthStatus
}

// WithMeterProvider sets the OTEL meter provider (default: global).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *serverOptions) { o.meterProvider = mp }
}

// WithVersion reports v on /health.
func WithVersion(v string) Option {
	return func(o *serverOptions) { o.version = v }
}

// WithDefaultRewriter sets the rewriter used when a compress request names
// none.
func WithDefaultRewriter(name string) Option {
	return func(o *serverOptions) { o.defaultRewriter = name }
}

// WithTelemetryHealth folds telemetry health into /health.
func WithTelemetryHealth(fn func() telemetry.HealthStatus) Option {
	return func(o *serverOptions) { o.health = fn }
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:            e,
		svc:             svc,
		logger:          logger,
		config:          cfg,
		metrics:         newRequestMetrics(o.meterProvider),
		prom:            newPromMetrics(),
		version:         o.version,
		defaultRewriter: o.defaultRewriter,
		health:          o.health,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:        uuid.NewString,
		RequestIDHandler: attachRequestID,
	}))
	e.Use(s.requestLogger())
	if cfg.RateLimit > 0 {
		e.Use(s.rateLimiter())
	}
	e.Use(s.metrics.middleware())
	if cfg.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxBodyBytes)))
	}

	s.registerRoutes()
	return s, nil
}

// attachRequestID puts well-formed request IDs into the request context so
// handler logs carry them.
func attachRequestID(c echo.Context, id string) {
	if !logging.ValidRequestID(id) {
		return
	}
	req := c.Request()
	c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			}
			ctx := c.Request().Context()
			if status >= http.StatusInternalServerError {
				s.logger.Error(ctx, "http request", append(fields, zap.Error(err))...)
			} else {
				s.logger.Info(ctx, "http request", fields...)
			}
			return nil
		}
	}
}

// rateLimiter applies a per-client token bucket to API routes.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	burst := s.config.Burst
	if burst < 1 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.config.RateLimit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/health" || p == "/metrics"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.prom.rateLimited.Inc()
			s.logger.Warn(c.Request().Context(), "rate limit exceeded", zap.String("client", identifier))
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.prom.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/score", s.handleScore)
	v1.POST("/validate", s.handleValidate)
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/drift", s.handleDrift)
	v1.POST("/compress", s.handleCompress)
	v1.POST("/header/validate", s.handleHeader)
	if s.svc.Audit != nil {
		v1.GET("/audit", s.handleAudit)
	}
}

// Echo exposes the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. Without a deadline on ctx the
// configured shutdown timeout applies.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Package mcp exposes scoring, safety validation, analysis, drift and
// compression as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/Dudley70/compression-framework/internal/analyzer"
	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

// Services are the operations the tools call.
type Services struct {
	Scorer     scoring.Scorer
	Validator  *safety.Validator
	Analyzer   *analyzer.Analyzer
	Drift      *drift.Detector
	Compressor *compression.Service
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

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ctxcompress")
	Name string

	// Version is the server version (default: "0.1.0")
	Version string

	Logger        *logging.Logger
	MeterProvider metric.MeterProvider

	// DefaultRewriter is used when compress_text names none. Empty selects
	// by content type.
	DefaultRewriter string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ctxcompress",
		Version: "0.1.0",
		Logger:  logging.NewNop(),
	}
}

// Server is an MCP server backed by the in-process services.
type Server struct {
	mcp             *mcp.Server
	svc             Services
	toolRegistry    *ToolRegistry
	metrics         *toolMetrics
	logger          *logging.Logger
	defaultRewriter string
}

// NewServer creates a server with every tool registered.
func NewServer(cfg *Config, svc Services) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "ctxcompress"
	}
	if version == "" {
		version = "0.1.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		mcp:             mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		svc:             svc,
		toolRegistry:    NewToolRegistry(),
		metrics:         newToolMetrics(cfg.MeterProvider),
		logger:          logger,
		defaultRewriter: cfg.DefaultRewriter,
	}
	RegisterBuiltinTools(s.toolRegistry)
	s.registerTools()
	return s, nil
}

// Tools returns the registry of tool metadata.
func (s *Server) Tools() *ToolRegistry {
	return s.toolRegistry
}

// Connect serves one session over transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/Dudley70/compression-framework/internal/http"
	mcpserver "github.com/Dudley70/compression-framework/internal/mcp"
)

var (
	serveHost string
	servePort int

	mcpList   bool
	mcpSearch string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default server.port)")
	mcpCmd.Flags().BoolVar(&mcpList, "list", false, "list the tools and exit")
	mcpCmd.Flags().StringVar(&mcpSearch, "search", "", "list the tools matching a query and exit")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Start the HTTP API on server.host:server.port. The server exposes
/health, /metrics and the /api/v1 endpoints for scoring, validation,
analysis, drift, compression and header checks, and stops on SIGINT or
SIGTERM.

Examples:
  ctxcompress serve
  ctxcompress serve --host 0.0.0.0 --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svc, err := httpServices()
	if err != nil {
		return err
	}

	sc := current.cfg.Server
	cfg := &httpapi.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		RateLimit:       sc.RateLimit,
		Burst:           sc.Burst,
		MaxBodyBytes:    sc.MaxBodyBytes,
		ShutdownTimeout: sc.ShutdownTimeout.Duration(),
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	srv, err := httpapi.NewServer(svc, current.logger, cfg,
		httpapi.WithMeterProvider(current.tel.MeterProvider()),
		httpapi.WithVersion(version),
		httpapi.WithDefaultRewriter(current.cfg.Rewrite.Default),
		httpapi.WithTelemetryHealth(current.tel.Health),
	)
	if err != nil {
		return err
	}

	current.logger.Info(ctx, "starting ctxcompress",
		zap.String("addr", cfg.Addr()),
		zap.Bool("audit", svc.Audit != nil),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	current.logger.Info(ctx, "shutting down gracefully")
	if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	current.logger.Info(ctx, "server shutdown complete")
	return nil
}

func httpServices() (httpapi.Services, error) {
	var svc httpapi.Services
	var err error
	if svc.Scorer, err = current.compressionScorer(); err != nil {
		return svc, err
	}
	if svc.Validator, err = current.safetyValidator(); err != nil {
		return svc, err
	}
	if svc.Analyzer, err = current.contentAnalyzer(); err != nil {
		return svc, err
	}
	if svc.Drift, err = current.driftDetector(); err != nil {
		return svc, err
	}
	if svc.Compressor, err = current.compressor(); err != nil {
		return svc, err
	}
	if current.cfg.Audit.Enabled {
		if svc.Audit, err = current.auditStore(); err != nil {
			return svc, err
		}
	}
	return svc, nil
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing score_text,
validate_compression, analyze_document, check_drift, compress_text and
validate_header. Logs go to stderr.

Examples:
  ctxcompress mcp
  ctxcompress mcp --list
  ctxcompress mcp --search drift`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg := &mcpserver.Config{
		Name:            "ctxcompress",
		Version:         version,
		Logger:          current.logger,
		MeterProvider:   current.tel.MeterProvider(),
		DefaultRewriter: current.cfg.Rewrite.Default,
	}

	if mcpList || mcpSearch != "" {
		return listTools(cmd)
	}

	svc, err := httpServices()
	if err != nil {
		return err
	}
	srv, err := mcpserver.NewServer(cfg, mcpserver.Services{
		Scorer:     svc.Scorer,
		Validator:  svc.Validator,
		Analyzer:   svc.Analyzer,
		Drift:      svc.Drift,
		Compressor: svc.Compressor,
	})
	if err != nil {
		return err
	}
	return srv.Run(cmd.Context())
}

// listTools prints tool metadata without building any backend.
func listTools(cmd *cobra.Command) error {
	reg := mcpserver.NewToolRegistry()
	mcpserver.RegisterBuiltinTools(reg)

	var tools []*mcpserver.ToolMetadata
	if mcpSearch != "" {
		for _, r := range reg.Search(mcpSearch) {
			tools = append(tools, r.Tool)
		}
	} else {
		tools = reg.List()
	}
	if len(tools) == 0 && mcpSearch != "" {
		return errors.New("no tools match " + mcpSearch)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), tools)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tCATEGORY\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Category, t.Description)
	}
	return tw.Flush()
}

// Ctxcompress scores markdown documents for compression, validates
// compressed rewrites before they replace an original, and tracks token
// drift against the baseline recorded in each document's header.
//
// Configuration is read from ~/.config/ctxcompress/config.yaml (or --config)
// with CTXCOMPRESS_* environment overrides. See internal/config for keys.
//
// Usage:
//
//	# Score documents
//	ctxcompress score docs/*.md
//
//	# Gate a rewrite in CI
//	ctxcompress validate original.md compressed.md --strict
//
//	# Serve the HTTP API
//	ctxcompress serve --port 8787
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Process exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitVerdict = 2
)

var (
	configPath string
	logLevel   string
	jsonOutput bool
	strict     bool
)

// current is the application built for the running command.
var current *app

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		current.close(context.WithoutCancel(ctx))
		current = nil
	}

	var verdict *verdictError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &verdict):
		fmt.Fprintln(stderr, verdict.Error())
		return exitVerdict
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

// verdictError is returned when --strict is set and a check did not pass.
type verdictError struct {
	msg string
}

func (e *verdictError) Error() string { return e.msg }

var rootCmd = &cobra.Command{
	Use:   "ctxcompress",
	Short: "Score, validate and track compression of markdown documents",
	Long: `ctxcompress measures how compressed a markdown document already is,
checks whether a compressed rewrite can safely replace its original, and
reports token drift against the baseline stored in the document header.

Exit codes:
  0  success (or any verdict without --strict)
  1  error
  2  --strict and the verdict was warn or refuse`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configPath, logLevel)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ctxcompress\n")
		fmt.Fprintf(w, "Version:    %s\n", version)
		fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(w, "Build Date: %s\n", buildDate)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/ctxcompress/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "exit 2 when a check warns or refuses")
	rootCmd.AddCommand(versionCmd)
}

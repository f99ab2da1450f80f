package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dudley70/compression-framework/internal/convergence"
	"github.com/Dudley70/compression-framework/internal/logging"
)

var (
	convergeRounds    int
	convergeQuick     bool
	convergeOut       string
	convergeRewriters string
	convergeArchive   bool
	convergeSafety    string
)

func init() {
	rootCmd.AddCommand(convergeCmd)
	convergeCmd.AddCommand(convergeReportCmd)
	convergeCmd.Flags().IntVar(&convergeRounds, "rounds", 0, "maximum rounds per run (default convergence.max_rounds, or quick_rounds with --quick)")
	convergeCmd.Flags().BoolVar(&convergeQuick, "quick", false, "short runs over a capped number of tests")
	convergeCmd.Flags().StringVar(&convergeOut, "out", "", "output directory (default convergence.output_dir)")
	convergeCmd.Flags().StringVar(&convergeRewriters, "rewriters", "mock,rules,extractive", "comma-separated rewriters to test")
	convergeCmd.Flags().BoolVar(&convergeArchive, "archive", false, "also archive every round's text (zstd JSON lines)")
	convergeCmd.Flags().StringVar(&convergeSafety, "safety", "both", "safety modes to test: on, off or both")
}

var convergeCmd = &cobra.Command{
	Use:   "converge <file>...",
	Short: "Measure how repeated compression converges",
	Long: `Repeatedly rewrite each document with its own output and record token
counts per round, with and without the safety validator. Results are saved
as JSON, a CSV of per-round curves and a markdown summary, and an analysis
report is printed.

Examples:
  ctxcompress converge docs/*.md --quick
  ctxcompress converge design.md --rounds 50 --rewriters rules --out results`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConverge,
}

var convergeReportCmd = &cobra.Command{
	Use:   "report <convergence_data.json>",
	Short: "Analyze saved convergence results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := convergence.Load(args[0])
		if err != nil {
			return err
		}
		a := convergence.Analyze(res)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), a)
		}
		fmt.Fprint(cmd.OutOrStdout(), a.Report(args[0]))
		return nil
	},
}

// convergeOutput is the JSON output of converge.
type convergeOutput struct {
	Paths    convergence.Paths     `json:"paths"`
	Archive  string                `json:"archive,omitempty"`
	Analysis *convergence.Analysis `json:"analysis"`
}

func safetyModes(s string) ([]bool, error) {
	switch s {
	case "both", "":
		return nil, nil
	case "on":
		return []bool{true}, nil
	case "off":
		return []bool{false}, nil
	}
	return nil, fmt.Errorf("invalid --safety %q (on, off or both)", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runConverge(cmd *cobra.Command, args []string) error {
	cc := current.cfg.Convergence
	modes, err := safetyModes(convergeSafety)
	if err != nil {
		return err
	}
	rewriters := splitList(convergeRewriters)
	if len(rewriters) == 0 {
		return errors.New("at least one rewriter is required")
	}

	reg, err := current.rewriters()
	if err != nil {
		return err
	}
	for _, name := range rewriters {
		if _, err := reg.Get(name); err != nil {
			return err
		}
	}

	docs := make([]convergence.Document, 0, len(args))
	for _, path := range args {
		text, err := readInput(cmd, path)
		if err != nil {
			return err
		}
		docs = append(docs, convergence.Document{Name: filepath.Base(path), Text: text})
	}

	counter, err := current.tokenCounter()
	if err != nil {
		return err
	}
	v, err := current.safetyValidator()
	if err != nil {
		return err
	}
	h, err := convergence.New(counter, v, reg,
		convergence.WithLogger(current.logger),
		convergence.WithTracerProvider(current.tel.TracerProvider()),
	)
	if err != nil {
		return err
	}

	opts := convergence.MatrixOptions{
		MaxRounds:   cc.MaxRounds,
		Workers:     cc.Workers,
		Mode:        convergence.ModeFull,
		SafetyModes: modes,
	}
	if convergeQuick {
		opts.MaxRounds = cc.QuickRounds
		opts.Mode = convergence.ModeQuick
	}
	if convergeRounds > 0 {
		opts.MaxRounds = convergeRounds
	}

	ctx := logging.WithOperation(cmd.Context(), "converge")
	res, err := h.RunMatrix(ctx, docs, rewriters, opts)
	if err != nil {
		return err
	}

	dir := convergeOut
	if dir == "" {
		dir = cc.OutputDir
	}
	ts := time.Now().Format(convergence.TimestampLayout)
	paths, err := convergence.Save(dir, res, ts)
	if err != nil {
		return err
	}

	out := convergeOutput{Paths: paths, Analysis: convergence.Analyze(res)}
	if convergeArchive || cc.Archive {
		out.Archive = convergence.ArchivePath(dir, ts)
		n, err := convergence.ArchiveRounds(out.Archive, res)
		if err != nil {
			return err
		}
		current.logger.Info(ctx, "archived convergence rounds", zap.String("path", out.Archive), zap.Int("rounds", n))
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), out)
	}
	w := cmd.OutOrStdout()
	fmt.Fprint(w, out.Analysis.Report(paths.JSON))
	fmt.Fprintf(w, "\nResults:\n  %s\n  %s\n  %s\n", paths.JSON, paths.CSV, paths.Markdown)
	if out.Archive != "" {
		fmt.Fprintf(w, "  %s\n", out.Archive)
	}
	return nil
}

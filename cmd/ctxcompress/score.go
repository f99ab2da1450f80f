package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

var scoreWorkers int

func init() {
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(validateCmd)
	scoreCmd.Flags().IntVar(&scoreWorkers, "workers", 0, "parallel scorers (default convergence.workers)")
	validateStyle.register(validateCmd)
	validateCmd.Flags().StringVar(&validateDocument, "document", "", "document name recorded in the audit log")
}

var scoreCmd = &cobra.Command{
	Use:   "score [file|-]...",
	Short: "Score how compressed documents already are",
	Long: `Score one or more documents from 0 (verbose prose) to 1 (dense notation).
Use - to read from stdin. Files are scored in parallel.

Examples:
  ctxcompress score docs/*.md
  cat notes.md | ctxcompress score -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScore,
}

// scoredFile is one line of score output.
type scoredFile struct {
	Path   string          `json:"path"`
	Result *scoring.Result `json:"result"`
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := logging.WithOperation(cmd.Context(), "score")
	scorer, err := current.compressionScorer()
	if err != nil {
		return err
	}

	texts := make([]string, len(args))
	for i, arg := range args {
		if texts[i], err = readInput(cmd, arg); err != nil {
			return err
		}
	}
	workers := scoreWorkers
	if workers <= 0 {
		workers = current.cfg.Convergence.Workers
	}
	results, err := scoring.BatchScore(ctx, scorer, texts, workers)
	if err != nil {
		return fmt.Errorf("score failed: %w", err)
	}

	out := make([]scoredFile, len(args))
	for i, arg := range args {
		out[i] = scoredFile{Path: arg, Result: results[i]}
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), out)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSCORE\tINTERPRETATION\tSAFE")
	for _, f := range out {
		fmt.Fprintf(tw, "%s\t%.3f\t%s\t%t\n", f.Path, f.Result.OverallScore, f.Result.Interpretation, f.Result.SafeToCompress)
	}
	return tw.Flush()
}

var (
	validateStyle    styleFlags
	validateDocument string
)

var validateCmd = &cobra.Command{
	Use:   "validate <original> <compressed>",
	Short: "Check whether a compressed text can safely replace its original",
	Long: `Run the safety checks on a candidate rewrite: the pre-check on the
original, entity preservation, minimal token benefit and semantic similarity.

Either argument may be - for stdin. With --strict the command exits 2 unless
the verdict is accept.

Examples:
  ctxcompress validate design.md design.compressed.md
  ctxcompress validate --strict --json original.md -`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	if args[0] == "-" && args[1] == "-" {
		return errors.New("only one argument may read stdin")
	}
	original, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	compressed, err := readInput(cmd, args[1])
	if err != nil {
		return err
	}

	v, err := current.safetyValidator()
	if err != nil {
		return err
	}
	var params *safety.Parameters
	if validateStyle.changed(cmd) {
		p := validateStyle.params()
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid parameters: %w", err)
		}
		params = &p
	}

	doc := validateDocument
	if doc == "" && args[0] != "-" {
		doc = args[0]
	}
	ctx := logging.WithDocument(logging.WithOperation(cmd.Context(), "validate"), doc)
	report, err := v.Validate(ctx, original, compressed, params)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}
	return strictVerdict(report)
}

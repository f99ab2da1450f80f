package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/frontmatter"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
)

var (
	compressStyle        styleFlags
	compressRewriter     string
	compressWrite        bool
	compressForce        bool
	compressUpdateHeader bool
)

func init() {
	rootCmd.AddCommand(compressCmd)
	compressStyle.register(compressCmd)
	compressCmd.Flags().StringVar(&compressRewriter, "rewriter", "", "mock, rules, extractive, a rule group, or auto (default rewrite.default)")
	compressCmd.Flags().BoolVar(&compressWrite, "write", false, "replace the file instead of printing the result")
	compressCmd.Flags().BoolVar(&compressForce, "force", false, "keep the candidate even when the validator does not accept it")
	compressCmd.Flags().BoolVar(&compressUpdateHeader, "update-header", false, "record the pass in the document's compression header")
}

var compressCmd = &cobra.Command{
	Use:   "compress <file>",
	Short: "Rewrite a document and keep the result only if it is safe",
	Long: `Rewrite the body of a document with the selected rewriter, then gate the
candidate through the safety validator. The frontmatter is preserved; with
--update-header its compression block records the new baseline, the style
parameters and the check scores.

Without --write the resulting document is printed to stdout and the verdict
to stderr.

Examples:
  ctxcompress compress docs/design.md --rewriter rules
  ctxcompress compress docs/design.md --sigma 0.8 --write --update-header`,
	Args: cobra.ExactArgs(1),
	RunE: runCompress,
}

// compressResult is the JSON output of compress.
type compressResult struct {
	Path     string               `json:"path"`
	Outcome  *compression.Outcome `json:"outcome"`
	Kept     bool                 `json:"kept"`
	Written  bool                 `json:"written"`
	Document string               `json:"document,omitempty"`
}

func runCompress(cmd *cobra.Command, args []string) error {
	path := args[0]
	if compressWrite && path == "-" {
		return errors.New("--write needs a file argument")
	}
	content, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	svc, err := current.compressor()
	if err != nil {
		return err
	}

	name := compressRewriter
	if name == "" {
		name = current.cfg.Rewrite.Default
	}
	p := compressStyle.params()
	ctx := logging.WithDocument(logging.WithOperation(cmd.Context(), "compress"), path)

	out, err := svc.Compress(ctx, compression.Request{Text: frontmatter.Body(content), Rewriter: name, Params: p})
	if err != nil {
		return err
	}

	res := compressResult{Path: path, Outcome: out, Kept: out.Applied || (compressForce && out.Candidate != "")}
	if res.Kept {
		if res.Document, err = renderCompressed(content, out.Candidate, p, out.Report); err != nil {
			return err
		}
	}
	if res.Kept && compressWrite {
		if err := writeInPlace(path, res.Document); err != nil {
			return err
		}
		res.Written = true
		current.logger.Info(ctx, "document rewritten",
			zap.String("rewriter", out.Rewriter),
			zap.Bool("forced", !out.Applied),
		)
	}

	switch {
	case jsonOutput:
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	case res.Kept && !res.Written:
		fmt.Fprint(cmd.OutOrStdout(), res.Document)
		printOutcome(cmd, out, res)
	default:
		printOutcome(cmd, out, res)
	}

	if !out.Applied {
		return strictVerdict(out.Report)
	}
	return nil
}

// printOutcome writes the verdict to stdout, or to stderr when stdout
// carries the document.
func printOutcome(cmd *cobra.Command, out *compression.Outcome, res compressResult) {
	w := cmd.OutOrStdout()
	if res.Kept && !res.Written {
		w = cmd.ErrOrStderr()
	}
	fmt.Fprintf(w, "Rewriter:       %s (%s)\n", out.Rewriter, out.ContentType)
	fmt.Fprintf(w, "Score:          %.3f", out.ScoreBefore)
	if out.ScoreAfter != nil {
		fmt.Fprintf(w, " -> %.3f", *out.ScoreAfter)
	}
	fmt.Fprintln(w)
	switch {
	case res.Written:
		fmt.Fprintf(w, "Written:        %s\n", res.Path)
	case !res.Kept:
		fmt.Fprintf(w, "Written:        no (candidate not accepted)\n")
	}
	if out.Report != nil {
		printReport(w, out.Report)
	}
}

// renderCompressed puts candidate under content's header.
func renderCompressed(content, candidate string, p compression.Params, report *safety.Report) (string, error) {
	if !strings.HasSuffix(candidate, "\n") {
		candidate += "\n"
	}
	if compressUpdateHeader {
		counter, err := current.tokenCounter()
		if err != nil {
			return "", err
		}
		n, err := counter.Count(candidate)
		if err != nil {
			return "", fmt.Errorf("count tokens: %w", err)
		}
		return compression.RenderDocument(content, candidate, n, p, report, time.Now())
	}
	b, ok := frontmatter.Split(content)
	switch {
	case !ok:
		return candidate, nil
	case b.Raw == "":
		return "---\n---\n" + candidate, nil
	default:
		return "---\n" + b.Raw + "\n---\n" + candidate, nil
	}
}

func writeInPlace(path, content string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

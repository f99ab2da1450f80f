package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/frontmatter"
	"github.com/Dudley70/compression-framework/internal/logging"
)

var headerRequireCompression bool

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(headerCmd)
	headerCmd.Flags().BoolVar(&headerRequireCompression, "require-compression", false, "require a compression block")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Classify each section of a document as verbose, mixed or compressed",
	Long: `Split a markdown document into sections, score each one and recommend
what to compress. Header metadata (target style, baseline tokens) is read
from the document's frontmatter.

Examples:
  ctxcompress analyze docs/architecture.md`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	content, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	a, err := current.contentAnalyzer()
	if err != nil {
		return err
	}
	ctx := logging.WithDocument(logging.WithOperation(cmd.Context(), "analyze"), args[0])
	res, err := a.AnalyzeContent(ctx, content)
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "State:          %s\n", res.OverallState)
	fmt.Fprintf(w, "Recommendation: %s\n", res.Recommendation)
	if td := res.TokenDrift; td != nil && td.DriftRatio != nil {
		fmt.Fprintf(w, "Token drift:    %.2fx (%d tokens)\n", *td.DriftRatio, td.CurrentTokens)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINES\tSTATE\tSCORE\tSECTION")
	for _, s := range res.Sections {
		fmt.Fprintf(tw, "%d-%d\t%s\t%.3f\t%s\n", s.StartLine, s.EndLine, s.State, s.Score, s.Title)
	}
	return tw.Flush()
}

var driftCmd = &cobra.Command{
	Use:   "drift <file>...",
	Short: "Compare documents against their recorded token baselines",
	Long: `Count each document's tokens and compare them with the baseline in its
compression header. Documents without a baseline are reported as untracked.

With --strict the command exits 2 when any document needs review or
compression.

Examples:
  ctxcompress drift docs/*.md
  ctxcompress drift --strict --json README.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDrift,
}

func runDrift(cmd *cobra.Command, args []string) error {
	d, err := current.driftDetector()
	if err != nil {
		return err
	}
	ctx := logging.WithOperation(cmd.Context(), "drift")

	results := make([]drift.Result, 0, len(args))
	for _, path := range args {
		r, err := d.CheckFile(logging.WithDocument(ctx, path), path)
		if err != nil {
			return err
		}
		results = append(results, r)
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tBASELINE\tCURRENT\tRATIO\tRECOMMENDATION")
		for _, r := range results {
			baseline, ratio := "-", "-"
			if r.BaselineTokens != nil {
				baseline = fmt.Sprint(*r.BaselineTokens)
			}
			if r.DriftRatio != nil {
				ratio = fmt.Sprintf("%.2f", *r.DriftRatio)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Path, baseline, r.CurrentTokens, ratio, r.Recommendation)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if strict {
		for _, r := range results {
			if r.Recommendation == drift.RecommendReview || r.Recommendation == drift.RecommendCompress {
				return &verdictError{msg: fmt.Sprintf("%s: %s", r.Path, r.Explanation)}
			}
		}
	}
	return nil
}

var headerCmd = &cobra.Command{
	Use:   "header <file>",
	Short: "Check a document's frontmatter against the header conventions",
	Long: `Validate the YAML frontmatter of a document: required fields, allowed
values and the target style parameters.

With --strict the command exits 2 when the header is missing or invalid.

Examples:
  ctxcompress header docs/plan.md
  ctxcompress header --require-compression docs/plan.md`,
	Args: cobra.ExactArgs(1),
	RunE: runHeader,
}

func runHeader(cmd *cobra.Command, args []string) error {
	content, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	c := frontmatter.Check(content, frontmatter.ValidateOptions{RequireCompression: headerRequireCompression})

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), c); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		switch {
		case c.Valid:
			fmt.Fprintf(w, "%s: header is valid\n", args[0])
		case c.Error != "":
			fmt.Fprintf(w, "%s: %s\n", args[0], c.Error)
		default:
			fmt.Fprintf(w, "%s: %d violations\n", args[0], len(c.Violations))
			for _, v := range c.Violations {
				fmt.Fprintf(w, "  %s\n", v)
			}
		}
	}

	if strict && !c.Valid {
		return &verdictError{msg: fmt.Sprintf("%s: header does not conform", args[0])}
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/safety"
)

// maxInputBytes bounds a single document read from a file or stdin.
const maxInputBytes = 16 << 20

// readInput reads the document named by arg, or stdin when arg is "-".
func readInput(cmd *cobra.Command, arg string) (string, error) {
	var (
		r    io.Reader
		name = arg
	)
	if arg == "-" {
		r, name = cmd.InOrStdin(), "stdin"
	} else {
		info, err := os.Stat(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", arg, err)
		}
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("failed to read %s: not a regular file", arg)
		}
		f, err := os.Open(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", arg, err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", name, maxInputBytes)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// styleFlags are the σ/γ/κ overrides shared by validate and compress.
type styleFlags struct {
	sigma, gamma, kappa float64
}

func (s *styleFlags) register(cmd *cobra.Command) {
	d := compression.DefaultParams()
	cmd.Flags().Float64Var(&s.sigma, "sigma", d.Sigma, "structure parameter in [0,1]")
	cmd.Flags().Float64Var(&s.gamma, "gamma", d.Gamma, "granularity parameter in [0,1]")
	cmd.Flags().Float64Var(&s.kappa, "kappa", d.Kappa, "scaffolding parameter in [0,1]")
}

func (s *styleFlags) params() compression.Params {
	return compression.Params{Sigma: s.sigma, Gamma: s.gamma, Kappa: s.kappa}
}

// changed reports whether any style flag was given on the command line.
func (s *styleFlags) changed(cmd *cobra.Command) bool {
	f := cmd.Flags()
	return f.Changed("sigma") || f.Changed("gamma") || f.Changed("kappa")
}

// strictVerdict fails a non-accept report when --strict is set.
func strictVerdict(r *safety.Report) error {
	if !strict || r == nil || r.Recommendation == safety.RecommendAccept {
		return nil
	}
	return &verdictError{msg: fmt.Sprintf("verdict %s: %s", r.Recommendation, r.Summary)}
}

func printReport(w io.Writer, r *safety.Report) {
	fmt.Fprintf(w, "Recommendation: %s\n", strings.ToUpper(string(r.Recommendation)))
	fmt.Fprintf(w, "Safe:           %t\n", r.Safe)
	fmt.Fprintf(w, "Summary:        %s\n", r.Summary)

	c := r.Checks
	if c.PreCheck != nil {
		fmt.Fprintf(w, "  pre-check             %s  %s\n", mark(c.PreCheck.Passed), c.PreCheck.Message)
	}
	if c.EntityPreservation != nil {
		fmt.Fprintf(w, "  entity preservation   %s  %s\n", mark(c.EntityPreservation.Passed), c.EntityPreservation.Message)
	}
	if c.MinimalBenefit != nil {
		fmt.Fprintf(w, "  minimal benefit       %s  %s\n", mark(c.MinimalBenefit.Passed), c.MinimalBenefit.Message)
	}
	if c.SemanticSimilarity != nil {
		fmt.Fprintf(w, "  semantic similarity   %s  %s\n", mark(c.SemanticSimilarity.Passed), c.SemanticSimilarity.Message)
	}
}

func mark(passed bool) string {
	if passed {
		return "pass"
	}
	return "FAIL"
}

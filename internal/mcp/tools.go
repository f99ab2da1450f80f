package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Dudley70/compression-framework/internal/analyzer"
	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/frontmatter"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

// maxFileBytes bounds documents read from a path argument.
const maxFileBytes = 4 << 20

var (
	errTextRequired = errors.New("text or path is required")
	errTextAndPath  = errors.New("provide text or path, not both")
)

type scoreTextInput struct {
	Text  string   `json:"text,omitempty" jsonschema:"Text to score"`
	Texts []string `json:"texts,omitempty" jsonschema:"Texts to score as one batch; results keep input order"`
}

type scoreTextOutput struct {
	Result  *scoring.Result   `json:"result,omitempty" jsonschema:"Score of text"`
	Results []*scoring.Result `json:"results,omitempty" jsonschema:"Scores of texts in input order"`
}

type validateInput struct {
	Original   string   `json:"original" jsonschema:"Original text"`
	Compressed string   `json:"compressed" jsonschema:"Candidate replacement text"`
	Document   string   `json:"document,omitempty" jsonschema:"Document path recorded with the verdict"`
	Sigma      *float64 `json:"sigma,omitempty" jsonschema:"Structure parameter in [0,1]"`
	Gamma      *float64 `json:"gamma,omitempty" jsonschema:"Granularity parameter in [0,1]"`
	Kappa      *float64 `json:"kappa,omitempty" jsonschema:"Scaffolding parameter in [0,1]"`
}

type documentInput struct {
	Text string `json:"text,omitempty" jsonschema:"Document content"`
	Path string `json:"path,omitempty" jsonschema:"Path of a document to read instead of text"`
}

type compressInput struct {
	Text     string   `json:"text" jsonschema:"Text to compress"`
	Document string   `json:"document,omitempty" jsonschema:"Document path recorded with the verdict"`
	Rewriter string   `json:"rewriter,omitempty" jsonschema:"Rewriter name: mock, rules, extractive, a rule group, or auto"`
	Sigma    *float64 `json:"sigma,omitempty" jsonschema:"Structure parameter in [0,1]"`
	Gamma    *float64 `json:"gamma,omitempty" jsonschema:"Granularity parameter in [0,1]"`
	Kappa    *float64 `json:"kappa,omitempty" jsonschema:"Scaffolding parameter in [0,1]"`
}

type headerInput struct {
	Text               string `json:"text,omitempty" jsonschema:"Document content"`
	Path               string `json:"path,omitempty" jsonschema:"Path of a document to read instead of text"`
	RequireCompression bool   `json:"require_compression,omitempty" jsonschema:"Demand a compression block"`
}

func styleParams(sigma, gamma, kappa *float64) safety.Parameters {
	p := compression.DefaultParams()
	if sigma != nil {
		p.Sigma = *sigma
	}
	if gamma != nil {
		p.Gamma = *gamma
	}
	if kappa != nil {
		p.Kappa = *kappa
	}
	return p
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// readDocument resolves a text-or-path argument to content.
func readDocument(text, path string) (string, error) {
	switch {
	case path != "" && text != "":
		return "", errTextAndPath
	case path != "":
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("read %s: not a regular file", path)
		}
		if info.Size() > maxFileBytes {
			return "", fmt.Errorf("read %s: file exceeds %d bytes", path, maxFileBytes)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	case blank(text):
		return "", errTextRequired
	}
	return text, nil
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

// instrument wraps a handler with invocation metrics and failure logging.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		ctx = logging.WithOperation(ctx, name)
		done := s.metrics.begin(ctx, name)

		res, out, err := h(ctx, req, in)
		done(err)
		if err != nil {
			s.logger.Warn(ctx, "tool call failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func (s *Server) tool(name string) *mcp.Tool {
	meta, _ := s.toolRegistry.Get(name)
	return &mcp.Tool{Name: meta.Name, Description: meta.Description}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, s.tool("score_text"), instrument(s, "score_text", s.scoreText))
	mcp.AddTool(s.mcp, s.tool("validate_compression"), instrument(s, "validate_compression", s.validateCompression))
	mcp.AddTool(s.mcp, s.tool("analyze_document"), instrument(s, "analyze_document", s.analyzeDocument))
	mcp.AddTool(s.mcp, s.tool("check_drift"), instrument(s, "check_drift", s.checkDrift))
	mcp.AddTool(s.mcp, s.tool("compress_text"), instrument(s, "compress_text", s.compressText))
	mcp.AddTool(s.mcp, s.tool("validate_header"), instrument(s, "validate_header", s.validateHeader))
}

func (s *Server) scoreText(ctx context.Context, _ *mcp.CallToolRequest, in scoreTextInput) (*mcp.CallToolResult, scoreTextOutput, error) {
	if len(in.Texts) > 0 {
		for i, t := range in.Texts {
			if blank(t) {
				return nil, scoreTextOutput{}, fmt.Errorf("texts[%d] is required", i)
			}
		}
		results, err := scoring.BatchScore(ctx, s.svc.Scorer, in.Texts, 0)
		if err != nil {
			return nil, scoreTextOutput{}, fmt.Errorf("score failed: %w", err)
		}
		return textResult("Scored %d texts", len(results)), scoreTextOutput{Results: results}, nil
	}

	if blank(in.Text) {
		return nil, scoreTextOutput{}, errors.New("text is required")
	}
	r, err := s.svc.Scorer.Score(ctx, in.Text)
	if err != nil {
		return nil, scoreTextOutput{}, fmt.Errorf("score failed: %w", err)
	}
	return textResult("Score %.3f (%s)", r.OverallScore, r.Interpretation), scoreTextOutput{Result: r}, nil
}

func (s *Server) validateCompression(ctx context.Context, _ *mcp.CallToolRequest, in validateInput) (*mcp.CallToolResult, safety.Report, error) {
	if blank(in.Original) {
		return nil, safety.Report{}, errors.New("original is required")
	}
	var params *safety.Parameters
	if in.Sigma != nil || in.Gamma != nil || in.Kappa != nil {
		p := styleParams(in.Sigma, in.Gamma, in.Kappa)
		if err := p.Validate(); err != nil {
			return nil, safety.Report{}, fmt.Errorf("invalid parameters: %w", err)
		}
		params = &p
	}

	ctx = logging.WithDocument(ctx, in.Document)
	report, err := s.svc.Validator.Validate(ctx, in.Original, in.Compressed, params)
	if err != nil {
		return nil, safety.Report{}, err
	}
	return textResult("%s: %s", report.Recommendation, report.Summary), *report, nil
}

func (s *Server) analyzeDocument(ctx context.Context, _ *mcp.CallToolRequest, in documentInput) (*mcp.CallToolResult, analyzer.Analysis, error) {
	content, err := readDocument(in.Text, in.Path)
	if err != nil {
		return nil, analyzer.Analysis{}, err
	}
	ctx = logging.WithDocument(ctx, in.Path)
	a, err := s.svc.Analyzer.AnalyzeContent(ctx, content)
	if err != nil {
		return nil, analyzer.Analysis{}, fmt.Errorf("analyze failed: %w", err)
	}
	return textResult("%s: %s", a.OverallState, a.Recommendation), *a, nil
}

func (s *Server) checkDrift(ctx context.Context, _ *mcp.CallToolRequest, in documentInput) (*mcp.CallToolResult, drift.Result, error) {
	var (
		r   drift.Result
		err error
	)
	switch {
	case in.Path != "" && in.Text != "":
		return nil, drift.Result{}, errTextAndPath
	case in.Path != "":
		r, err = s.svc.Drift.CheckFile(logging.WithDocument(ctx, in.Path), in.Path)
	case blank(in.Text):
		return nil, drift.Result{}, errTextRequired
	default:
		r, err = s.svc.Drift.CheckContent(ctx, in.Text)
	}
	if err != nil {
		return nil, drift.Result{}, fmt.Errorf("drift check failed: %w", err)
	}
	return textResult("%s: %s", r.Recommendation, r.Explanation), r, nil
}

func (s *Server) compressText(ctx context.Context, _ *mcp.CallToolRequest, in compressInput) (*mcp.CallToolResult, compression.Outcome, error) {
	if blank(in.Text) {
		return nil, compression.Outcome{}, errors.New("text is required")
	}
	name := in.Rewriter
	if name == "" {
		name = s.defaultRewriter
	}

	ctx = logging.WithDocument(ctx, in.Document)
	out, err := s.svc.Compressor.Compress(ctx, compression.Request{
		Text:     in.Text,
		Rewriter: name,
		Params:   styleParams(in.Sigma, in.Gamma, in.Kappa),
	})
	if err != nil {
		return nil, compression.Outcome{}, err
	}

	if out.Applied && out.Report != nil && out.Report.Checks.MinimalBenefit != nil {
		b := out.Report.Checks.MinimalBenefit
		s.metrics.tokensSaved(ctx, out.Rewriter, b.OriginalTokens-b.CompressedTokens)
	}

	verdict := "not rewritten"
	if out.Report != nil {
		verdict = string(out.Report.Recommendation)
	}
	return textResult("%s via %s (applied: %t)", verdict, out.Rewriter, out.Applied), *out, nil
}

func (s *Server) validateHeader(_ context.Context, _ *mcp.CallToolRequest, in headerInput) (*mcp.CallToolResult, frontmatter.Conformance, error) {
	content, err := readDocument(in.Text, in.Path)
	if err != nil {
		return nil, frontmatter.Conformance{}, err
	}
	c := frontmatter.Check(content, frontmatter.ValidateOptions{RequireCompression: in.RequireCompression})

	var res *mcp.CallToolResult
	switch {
	case c.Valid:
		res = textResult("Header is valid")
	case c.Error != "":
		res = textResult("Header is invalid: %s", c.Error)
	default:
		res = textResult("Header has %d violations", len(c.Violations))
	}
	return res, c, nil
}

package http

import (
	"github.com/Dudley70/compression-framework/internal/audit"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version,omitempty"`
	Audit   bool     `json:"audit"`
	Reasons []string `json:"reasons,omitempty"`
}

// StyleParams carries optional σ/γ/κ overrides. Omitted fields keep the
// defaults.
type StyleParams struct {
	Sigma *float64 `json:"sigma,omitempty"`
	Gamma *float64 `json:"gamma,omitempty"`
	Kappa *float64 `json:"kappa,omitempty"`
}

func (p *StyleParams) apply(base safety.Parameters) safety.Parameters {
	if p == nil {
		return base
	}
	if p.Sigma != nil {
		base.Sigma = *p.Sigma
	}
	if p.Gamma != nil {
		base.Gamma = *p.Gamma
	}
	if p.Kappa != nil {
		base.Kappa = *p.Kappa
	}
	return base
}

// ScoreRequest is the request body for POST /api/v1/score. Texts, when
// set, are scored concurrently and returned in order.
type ScoreRequest struct {
	Text  string   `json:"text"`
	Texts []string `json:"texts,omitempty"`
}

// ScoreResponse is the response body for POST /api/v1/score.
type ScoreResponse struct {
	Result  *scoring.Result   `json:"result,omitempty"`
	Results []*scoring.Result `json:"results,omitempty"`
}

// ValidateRequest is the request body for POST /api/v1/validate.
type ValidateRequest struct {
	Original   string       `json:"original"`
	Compressed string       `json:"compressed"`
	Document   string       `json:"document,omitempty"`
	Params     *StyleParams `json:"params,omitempty"`
}

// TextRequest carries a single document for analyze and drift.
type TextRequest struct {
	Text     string `json:"text"`
	Document string `json:"document,omitempty"`
}

// CompressRequest is the request body for POST /api/v1/compress.
type CompressRequest struct {
	Text     string       `json:"text"`
	Document string       `json:"document,omitempty"`
	Rewriter string       `json:"rewriter,omitempty"`
	Params   *StyleParams `json:"params,omitempty"`
}

// HeaderRequest is the request body for POST /api/v1/header/validate.
type HeaderRequest struct {
	Text               string `json:"text"`
	RequireCompression bool   `json:"require_compression,omitempty"`
}

// AuditResponse is the response body for GET /api/v1/audit.
type AuditResponse struct {
	Entries []audit.Entry                 `json:"entries"`
	Counts  map[safety.Recommendation]int `json:"counts"`
}

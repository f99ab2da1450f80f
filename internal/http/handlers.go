package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Dudley70/compression-framework/internal/audit"
	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/frontmatter"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
)

const maxAuditLimit = 1000

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// fail maps a service error onto a status. Details stay in the log.
func (s *Server) fail(c echo.Context, op string, err error) error {
	ctx := c.Request().Context()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(ctx, op+" timed out", zap.Error(err))
		return echo.NewHTTPError(http.StatusGatewayTimeout, op+" timed out").SetInternal(err)
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled").SetInternal(err)
	}
	s.logger.Error(ctx, op+" failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, op+" failed").SetInternal(err)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Audit:   s.svc.Audit != nil,
	}
	if s.health != nil {
		if h := s.health(); h.Degraded {
			resp.Status = "degraded"
			resp.Reasons = h.Reasons
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScore(c echo.Context) error {
	var req ScoreRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	if len(req.Texts) > 0 {
		for i, t := range req.Texts {
			if blank(t) {
				return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("texts[%d] is required", i))
			}
		}
		results, err := scoring.BatchScore(ctx, s.svc.Scorer, req.Texts, 0)
		if err != nil {
			return s.fail(c, "score", err)
		}
		return c.JSON(http.StatusOK, ScoreResponse{Results: results})
	}

	if blank(req.Text) {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	result, err := s.svc.Scorer.Score(ctx, req.Text)
	if err != nil {
		return s.fail(c, "score", err)
	}
	return c.JSON(http.StatusOK, ScoreResponse{Result: result})
}

func (s *Server) handleValidate(c echo.Context) error {
	var req ValidateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if blank(req.Original) {
		return echo.NewHTTPError(http.StatusBadRequest, "original is required")
	}

	var params *safety.Parameters
	if req.Params != nil {
		p := req.Params.apply(compression.DefaultParams())
		if err := p.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		params = &p
	}

	ctx := logging.WithDocument(c.Request().Context(), req.Document)
	report, err := s.svc.Validator.Validate(ctx, req.Original, req.Compressed, params)
	if err != nil {
		return s.fail(c, "validate", err)
	}
	s.prom.verdicts.WithLabelValues("validate", string(report.Recommendation)).Inc()
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req TextRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if blank(req.Text) {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	ctx := logging.WithDocument(c.Request().Context(), req.Document)
	analysis, err := s.svc.Analyzer.AnalyzeContent(ctx, req.Text)
	if err != nil {
		return s.fail(c, "analyze", err)
	}
	return c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleDrift(c echo.Context) error {
	var req TextRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if blank(req.Text) {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	ctx := logging.WithDocument(c.Request().Context(), req.Document)
	result, err := s.svc.Drift.CheckContent(ctx, req.Text)
	if err != nil {
		return s.fail(c, "drift check", err)
	}
	result.Path = req.Document
	s.prom.drift.WithLabelValues(string(result.Recommendation)).Inc()
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCompress(c echo.Context) error {
	var req CompressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if blank(req.Text) {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	name := req.Rewriter
	if name == "" {
		name = s.defaultRewriter
	}

	ctx := logging.WithDocument(c.Request().Context(), req.Document)
	out, err := s.svc.Compressor.Compress(ctx, compression.Request{
		Text:     req.Text,
		Rewriter: name,
		Params:   req.Params.apply(compression.DefaultParams()),
	})
	switch {
	case errors.Is(err, compression.ErrInvalidParams),
		errors.Is(err, compression.ErrUnknownRewriter),
		errors.Is(err, compression.ErrEmptyContent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return s.fail(c, "compress", err)
	}

	if out.Report != nil {
		s.prom.verdicts.WithLabelValues("compress", string(out.Report.Recommendation)).Inc()
	}
	s.prom.compressions.WithLabelValues(out.Rewriter, strconv.FormatBool(out.Applied)).Inc()
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleHeader(c echo.Context) error {
	var req HeaderRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if blank(req.Text) {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	return c.JSON(http.StatusOK, frontmatter.Check(req.Text, frontmatter.ValidateOptions{
		RequireCompression: req.RequireCompression,
	}))
}

func (s *Server) handleAudit(c echo.Context) error {
	limit := audit.DefaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("limit must be an integer in [1, %d]", maxAuditLimit))
		}
		limit = n
	}

	ctx := c.Request().Context()
	entries, err := s.svc.Audit.List(ctx, limit)
	if err != nil {
		return s.fail(c, "list verdicts", err)
	}
	counts, err := s.svc.Audit.Counts(ctx)
	if err != nil {
		return s.fail(c, "count verdicts", err)
	}
	return c.JSON(http.StatusOK, AuditResponse{Entries: entries, Counts: counts})
}

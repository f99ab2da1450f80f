package safety

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (v *Validator) startCheck(ctx context.Context, name CheckName) (context.Context, trace.Span) {
	return v.tracer.Start(ctx, "safety."+string(name))
}

func endCheck(span trace.Span, passed bool, err error) {
	span.SetAttributes(attribute.Bool("passed", passed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// preCheck refuses originals that already score as compressed.
func (v *Validator) preCheck(ctx context.Context, original string) *PreCheckResult {
	ctx, span := v.startCheck(ctx, CheckPre)
	threshold := v.thresholds.Refusal

	res, err := v.backends.Scorer.Score(ctx, original)
	if err != nil {
		endCheck(span, false, err)
		return &PreCheckResult{
			Passed:    false,
			Score:     1.0,
			Threshold: threshold,
			Message:   fmt.Sprintf("Pre-check error: %v", err),
		}
	}

	r := &PreCheckResult{Score: res.OverallScore, Threshold: threshold}
	if res.OverallScore < threshold {
		r.Passed = true
		r.Message = "Pre-check passed"
	} else {
		r.Message = fmt.Sprintf("Content already compressed (score: %.2f)", res.OverallScore)
	}
	span.SetAttributes(attribute.Float64("score", r.Score))
	endCheck(span, r.Passed, nil)
	return r
}

// entityPreservation requires the candidate to keep enough of the
// original's entities.
func (v *Validator) entityPreservation(ctx context.Context, original, compressed string) *EntityResult {
	ctx, span := v.startCheck(ctx, CheckEntityPreservation)
	threshold := v.thresholds.Entity

	fail := func(err error) *EntityResult {
		endCheck(span, false, err)
		return &EntityResult{
			Threshold:    threshold,
			LostEntities: []string{},
			Message:      fmt.Sprintf("Entity preservation check error: %v", err),
		}
	}

	orig, err := v.backends.Entities.Extract(ctx, original)
	if err != nil {
		return fail(err)
	}
	if len(orig) == 0 {
		endCheck(span, true, nil)
		return &EntityResult{
			Passed:           true,
			PreservationRate: 1.0,
			Threshold:        threshold,
			LostEntities:     []string{},
			Message:          "No entities to preserve",
		}
	}

	comp, err := v.backends.Entities.Extract(ctx, compressed)
	if err != nil {
		return fail(err)
	}

	preserved := orig.Intersect(comp)
	lost := orig.Difference(comp).Sorted()
	rate := float64(len(preserved)) / float64(len(orig))

	r := &EntityResult{
		Passed:            rate >= threshold,
		OriginalEntities:  len(orig),
		PreservedEntities: len(preserved),
		PreservationRate:  rate,
		Threshold:         threshold,
		LostEntities:      lost,
	}
	if len(r.LostEntities) > maxLostEntities {
		r.LostEntities = lost[:maxLostEntities]
	}

	if r.Passed {
		r.Message = fmt.Sprintf("Preserved %.1f%% of entities", rate*100)
	} else {
		r.Message = fmt.Sprintf("Only %.1f%% entities preserved (lost: %s)", rate*100, strings.Join(r.LostEntities, ", "))
		if extra := len(lost) - maxLostEntities; extra > 0 {
			r.Message += fmt.Sprintf(" (and %d more)", extra)
		}
	}

	span.SetAttributes(attribute.Float64("preservation_rate", rate), attribute.Int("lost", len(lost)))
	endCheck(span, r.Passed, nil)
	return r
}

// minimalBenefit requires a large enough token reduction.
func (v *Validator) minimalBenefit(ctx context.Context, original, compressed string) *BenefitResult {
	_, span := v.startCheck(ctx, CheckMinimalBenefit)
	threshold := v.thresholds.Benefit

	fail := func(err error) *BenefitResult {
		endCheck(span, false, err)
		one := 1.0
		return &BenefitResult{
			CompressionRatio: &one,
			Threshold:        threshold,
			Message:          fmt.Sprintf("Minimal benefit check error: %v", err),
		}
	}

	origTokens, err := v.backends.Counter.Count(original)
	if err != nil {
		return fail(err)
	}
	compTokens, err := v.backends.Counter.Count(compressed)
	if err != nil {
		return fail(err)
	}

	r := &BenefitResult{
		OriginalTokens:   origTokens,
		CompressedTokens: compTokens,
		Threshold:        threshold,
	}

	if origTokens == 0 {
		if compTokens == 0 {
			zero := 0.0
			r.CompressionRatio = &zero
		}
		r.Message = "Cannot compress empty text"
		endCheck(span, false, nil)
		return r
	}

	ratio := float64(compTokens) / float64(origTokens)
	r.CompressionRatio = &ratio
	r.ReductionPct = (1 - ratio) * 100
	r.Passed = ratio <= threshold

	switch {
	case r.Passed:
		r.Message = fmt.Sprintf("Compression achieves %.1f%% reduction", r.ReductionPct)
	case ratio > 1:
		r.Message = fmt.Sprintf("Text expanded by %.1f%% - not compressed", (ratio-1)*100)
	default:
		r.Message = fmt.Sprintf("Only %.1f%% reduction - insufficient benefit", r.ReductionPct)
	}

	span.SetAttributes(attribute.Float64("ratio", ratio))
	endCheck(span, r.Passed, nil)
	return r
}

// semanticSimilarity requires the candidate to keep the original's meaning.
func (v *Validator) semanticSimilarity(ctx context.Context, original, compressed string) *SimilarityResult {
	ctx, span := v.startCheck(ctx, CheckSemanticSimilarity)
	threshold := v.thresholds.Semantic
	r := &SimilarityResult{Threshold: threshold}

	o, c := strings.TrimSpace(original), strings.TrimSpace(compressed)
	switch {
	case o == "" || c == "":
		r.Message = "Cannot compare empty text"
		endCheck(span, false, nil)
		return r
	case o == c:
		r.Passed = true
		r.SimilarityScore = 1.0
		r.Message = "Identical text - perfect similarity"
		endCheck(span, true, nil)
		return r
	}

	sim, err := v.backends.Similarity.Similarity(ctx, original, compressed)
	if err != nil {
		r.Message = fmt.Sprintf("Semantic similarity check error: %v", err)
		endCheck(span, false, err)
		return r
	}

	r.SimilarityScore = sim
	r.Passed = sim >= threshold
	r.Message = fmt.Sprintf("Semantic similarity: %.3f", sim)
	if !r.Passed {
		r.Message += " - meaning significantly changed"
	}

	span.SetAttributes(attribute.Float64("similarity", sim))
	endCheck(span, r.Passed, nil)
	return r
}

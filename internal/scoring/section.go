package scoring

import "context"

// SectionScorer adapts a Scorer to the per-section call shape used by the
// document analyzer.
type SectionScorer struct {
	Scorer Scorer
}

// ScoreSection returns the overall score and raw metrics for one section.
func (s SectionScorer) ScoreSection(ctx context.Context, text string) (float64, Metrics, error) {
	r, err := s.Scorer.Score(ctx, text)
	if err != nil {
		return 0, Metrics{}, err
	}
	return r.OverallScore, r.Metrics, nil
}

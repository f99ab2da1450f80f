package compression

import (
	"errors"
	"time"

	"github.com/Dudley70/compression-framework/internal/frontmatter"
	"github.com/Dudley70/compression-framework/internal/safety"
)

// UpdateHeader replaces the compression block of meta with a record of this
// pass. baselineTokens is the token count of the new body. Checks that did
// not run are recorded as 0.
func UpdateHeader(meta map[string]any, baselineTokens int, p Params, report *safety.Report, now time.Time) map[string]any {
	rec := frontmatter.CompressionRecord{
		At:             now,
		BaselineTokens: baselineTokens,
		Sigma:          p.Sigma,
		Gamma:          p.Gamma,
		Kappa:          p.Kappa,
	}
	if report != nil {
		if e := report.Checks.EntityPreservation; e != nil {
			rec.EntityPreservation = e.PreservationRate
		}
		if s := report.Checks.SemanticSimilarity; s != nil {
			rec.SemanticSimilarity = s.SimilarityScore
		}
	}
	return frontmatter.SetCompression(meta, rec)
}

// RenderDocument writes body under content's existing header with a
// refreshed compression block. Content without a header gets a new one;
// a malformed header is an error.
func RenderDocument(content, body string, baselineTokens int, p Params, report *safety.Report, now time.Time) (string, error) {
	meta, _, err := frontmatter.Read(content)
	if err != nil {
		if _, ok := frontmatter.Split(content); ok || !errors.Is(err, frontmatter.ErrInvalidHeader) {
			return "", err
		}
		meta = nil
	}
	return frontmatter.Render(UpdateHeader(meta, baselineTokens, p, report, now), body)
}

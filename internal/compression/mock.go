package compression

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Dudley70/compression-framework/internal/entities"
	"github.com/Dudley70/compression-framework/internal/scoring"
	"github.com/Dudley70/compression-framework/internal/tokens"
)

// MockName is the registry name of the parameter-driven mock rewriter.
const MockName = "mock"

// Refusal is the reason the mock compressor declined to compress.
type Refusal string

const (
	RefuseEmptyInput        Refusal = "empty_input"
	RefuseInvalidParameters Refusal = "invalid_parameters"
	RefuseAlreadyCompressed Refusal = "already_compressed"
	RefuseMinimalBenefit    Refusal = "minimal_benefit"
	RefuseEntityLoss        Refusal = "entity_loss"
)

// MockThresholds are the three gates of the mock compressor.
type MockThresholds struct {
	Refusal float64 `json:"refusal_threshold"`
	Benefit float64 `json:"minimal_benefit_threshold"`
	Entity  float64 `json:"entity_preservation_threshold"`
}

// DefaultMockThresholds returns 0.8 / 0.85 / 0.80.
func DefaultMockThresholds() MockThresholds {
	return MockThresholds{Refusal: 0.8, Benefit: 0.85, Entity: 0.80}
}

// MockResult is either a refusal or a successful compression.
type MockResult struct {
	Refused bool    `json:"refused"`
	Reason  Refusal `json:"reason,omitempty"`
	Message string  `json:"message,omitempty"`

	CompressedText    string  `json:"compressed_text,omitempty"`
	OriginalTokens    int     `json:"original_tokens,omitempty"`
	CompressedTokens  int     `json:"compressed_tokens,omitempty"`
	CompressionRatio  float64 `json:"compression_ratio,omitempty"`
	ReductionPercent  float64 `json:"reduction_percent,omitempty"`
	OriginalScore     float64 `json:"original_score,omitempty"`
	FinalScore        float64 `json:"final_score,omitempty"`
	EntitiesPreserved float64 `json:"entities_preserved,omitempty"`
	EntitiesOriginal  int     `json:"entities_original,omitempty"`
	EntitiesRemaining int     `json:"entities_remaining,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	Parameters        *Params `json:"parameters,omitempty"`
}

// MockCompressor runs the parameter-driven mock rewrite behind the
// already-compressed, minimal-benefit and entity-loss gates.
type MockCompressor struct {
	scorer     scoring.Scorer
	counter    tokens.Counter
	thresholds MockThresholds
}

// NewMockCompressor returns a MockCompressor with default thresholds.
func NewMockCompressor(scorer scoring.Scorer, counter tokens.Counter) (*MockCompressor, error) {
	if scorer == nil || counter == nil {
		return nil, errors.New("mock compressor: scorer and token counter are required")
	}
	return &MockCompressor{scorer: scorer, counter: counter, thresholds: DefaultMockThresholds()}, nil
}

// Thresholds returns the active gates.
func (m *MockCompressor) Thresholds() MockThresholds {
	return m.thresholds
}

// Compress applies the gates in order: empty input, parameter range,
// already compressed, minimal benefit, entity loss. Refusals are results;
// only backend failures are errors.
func (m *MockCompressor) Compress(ctx context.Context, text string, p Params) (*MockResult, error) {
	if strings.TrimSpace(text) == "" {
		return &MockResult{
			Refused: true,
			Reason:  RefuseEmptyInput,
			Message: "Cannot compress empty or whitespace-only content.",
		}, nil
	}
	if err := p.Validate(); err != nil {
		return &MockResult{
			Refused: true,
			Reason:  RefuseInvalidParameters,
			Message: fmt.Sprintf("Parameters must be between 0 and 1. Got: σ=%v, γ=%v, κ=%v", p.Sigma, p.Gamma, p.Kappa),
		}, nil
	}

	before, err := m.scorer.Score(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("score original: %w", err)
	}
	if before.OverallScore >= m.thresholds.Refusal {
		return &MockResult{
			Refused: true,
			Reason:  RefuseAlreadyCompressed,
			Message: fmt.Sprintf("Document already compressed (score: %.2f). Refusing to prevent information loss. Threshold: %v",
				before.OverallScore, m.thresholds.Refusal),
			OriginalScore: before.OverallScore,
			Threshold:     m.thresholds.Refusal,
		}, nil
	}

	candidate := MockRewrite(text, p)

	origTokens, err := m.counter.Count(text)
	if err != nil {
		return nil, fmt.Errorf("count original: %w", err)
	}
	compTokens, err := m.counter.Count(candidate)
	if err != nil {
		return nil, fmt.Errorf("count candidate: %w", err)
	}

	ratio := 1.0
	if origTokens > 0 {
		ratio = float64(compTokens) / float64(origTokens)
	}
	reduction := (1 - ratio) * 100

	if ratio > m.thresholds.Benefit {
		return &MockResult{
			Refused: true,
			Reason:  RefuseMinimalBenefit,
			Message: fmt.Sprintf("Compression achieves only %.1f%% reduction (ratio: %.3f). Risk vs benefit too high. Minimum reduction required: %.1f%%",
				reduction, ratio, (1-m.thresholds.Benefit)*100),
			CompressionRatio: ratio,
			ReductionPercent: reduction,
			Threshold:        m.thresholds.Benefit,
		}, nil
	}

	origEnts := entities.SimpleExtract(text)
	compEnts := entities.SimpleExtract(candidate)
	preserved := preservation(origEnts, compEnts)

	if preserved < m.thresholds.Entity {
		return &MockResult{
			Refused: true,
			Reason:  RefuseEntityLoss,
			Message: fmt.Sprintf("Compression would lose %.1f%% of entities (%d → %d entities). Refusing to prevent information loss. Minimum preservation: %.0f%%",
				(1-preserved)*100, len(origEnts), len(compEnts), m.thresholds.Entity*100),
			EntitiesPreserved: preserved,
			EntitiesOriginal:  len(origEnts),
			EntitiesRemaining: len(compEnts),
			Threshold:         m.thresholds.Entity,
		}, nil
	}

	after, err := m.scorer.Score(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("score candidate: %w", err)
	}

	params := p
	return &MockResult{
		CompressedText:    candidate,
		OriginalTokens:    origTokens,
		CompressedTokens:  compTokens,
		CompressionRatio:  ratio,
		ReductionPercent:  reduction,
		OriginalScore:     before.OverallScore,
		FinalScore:        after.OverallScore,
		EntitiesPreserved: preserved,
		EntitiesOriginal:  len(origEnts),
		EntitiesRemaining: len(compEnts),
		Parameters:        &params,
	}, nil
}

func preservation(orig, comp map[string]struct{}) float64 {
	if len(orig) == 0 {
		return 1
	}
	kept := 0
	for e := range orig {
		if _, ok := comp[e]; ok {
			kept++
		}
	}
	return float64(kept) / float64(len(orig))
}

// MockRewriter exposes MockRewrite through the Rewriter interface.
type MockRewriter struct{}

// Name implements Rewriter.
func (MockRewriter) Name() string { return MockName }

// Rewrite implements Rewriter.
func (MockRewriter) Rewrite(ctx context.Context, text string, p Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return MockRewrite(text, p), nil
}

var (
	verboseSentences = compileAll(
		`(?i)It is important to (understand|note|remember) that\s.*?[.!?]`,
		`(?i)It should be noted that\s.*?[.!?]`,
		`(?i)As (mentioned|noted|discussed) (before|above|earlier|previously),?\s.*?[.!?]`,
		`(?i)This (means|indicates|shows|demonstrates) that\s.*?[.!?]`,
		`(?i)In other words,?\s.*?[.!?]`,
		`(?i)To (illustrate|explain|clarify),?\s.*?[.!?]`,
		`(?i)(Additionally|Furthermore|Moreover),?\s.*?[.!?]`,
		`(?i)You should (also )?(ensure|make sure|remember) that\s.*?[.!?]`,
	)

	verboseStarters = compileAll(
		`\s*[Tt]his means that\s*`,
		`\s*[Ii]n other words,?\s*`,
		`\s*[Ff]or example,?\s*`,
		`\s*[Tt]o illustrate,?\s*`,
		`\s*[Tt]hat is to say,?\s*`,
		`\s*[Ss]pecifically,?\s*`,
		`\s*[Ii]t should be noted that\s*`,
		`\s*[Ii]t is important to understand that\s*`,
		`\s*[Aa]s mentioned (before|above|earlier),?\s*`,
		`\s*[Aa]s we have seen,?\s*`,
		`\s*[Ii]n this case,?\s*`,
		`\s*[Aa]s you can see,?\s*`,
		`\s*[Aa]dditionally,?\s*`,
		`\s*[Ff]urthermore,?\s*`,
		`\s*[Mm]oreover,?\s*`,
	)

	redundantPhrases = compileAll(
		`(?i)[ \t]*as (mentioned|noted|discussed) (before|above|earlier|previously)[ \t]*`,
		`(?i)[ \t]*as we have seen[ \t]*`,
		`(?i)[ \t]*it is worth noting that[ \t]*`,
		`(?i)[ \t]*it should be emphasized that[ \t]*`,
	)

	keyPointStarter = regexp.MustCompile(`(?i)^(It is important to|You should|Additionally,?|Furthermore,?|Moreover,?)\s*`)
	keyPointMeans   = regexp.MustCompile(`(?i)^(This|That)\s+(means|indicates|shows)\s+that\s+`)
	sentenceEnd     = regexp.MustCompile(`[.!?]+`)
	anySpace        = regexp.MustCompile(`\s+`)
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	blankRuns       = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

var structuredPrefixes = []string{"- ", "* ", "1. ", "2. ", "#"}

// MockRewrite is the deterministic parameter-driven rewrite: κ < 0.5 strips
// explanatory scaffolding, γ < 0.6 truncates long sentences, σ > 0.6 turns
// long paragraphs into at most three bullets. Output that is still above
// 70% of the input length is cut harder.
func MockRewrite(text string, p Params) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p.Kappa < 0.5 {
			line = removeVerbose(line)
			if line == "" {
				continue
			}
		}
		if p.Gamma < 0.6 {
			line = shortenSentence(line, p.Gamma)
		}
		if p.Sigma > 0.6 && utf8.RuneCountInString(line) > 100 && !hasAnyPrefix(line, structuredPrefixes) {
			for _, point := range keyPoints(line) {
				out = append(out, "- "+point)
			}
			continue
		}
		out = append(out, line)
	}

	result := strings.Join(out, "\n")
	for _, re := range redundantPhrases {
		result = re.ReplaceAllString(result, " ")
	}
	result = horizontalSpace.ReplaceAllString(result, " ")
	result = blankRuns.ReplaceAllString(result, "\n\n")

	if float64(utf8.RuneCountInString(result))/float64(utf8.RuneCountInString(text)) > 0.7 {
		result = aggressive(result)
	}
	return strings.TrimSpace(result)
}

func removeVerbose(line string) string {
	for _, re := range verboseSentences {
		line = re.ReplaceAllString(line, "")
	}
	for _, re := range verboseStarters {
		line = re.ReplaceAllString(line, " ")
	}
	return strings.TrimSpace(anySpace.ReplaceAllString(line, " "))
}

func shortenSentence(s string, gamma float64) string {
	if utf8.RuneCountInString(s) < 60 {
		return s
	}
	words := strings.Fields(s)
	var limit int
	switch {
	case gamma < 0.3:
		limit = min(8, len(words)/4)
	case gamma < 0.5:
		limit = min(12, len(words)/2)
	default:
		limit = min(20, int(float64(len(words))*0.6))
	}
	if len(words) > limit {
		return strings.Join(words[:limit], " ")
	}
	return s
}

func keyPoints(paragraph string) []string {
	var points []string
	for _, s := range sentenceEnd.Split(paragraph, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) < 20 {
			continue
		}
		s = keyPointStarter.ReplaceAllString(s, "")
		s = keyPointMeans.ReplaceAllString(s, "")
		if utf8.RuneCountInString(s) > 15 {
			if words := strings.Fields(s); len(words) > 10 {
				s = strings.Join(words[:10], " ")
			}
			points = append(points, strings.TrimSpace(s))
		}
		if len(points) >= 3 {
			break
		}
	}
	return points
}

func aggressive(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if words := strings.Fields(line); len(words) > 8 {
			if strings.HasPrefix(line, "- ") {
				line = "- " + strings.Join(words[1:6], " ")
			} else {
				line = strings.Join(words[:8], " ")
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

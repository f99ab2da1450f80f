package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Dudley70/compression-framework/internal/tokens"
)

const tracerName = "github.com/Dudley70/compression-framework/internal/scoring"

var (
	// ErrNoCounter is returned by New when no token counter is supplied.
	ErrNoCounter = errors.New("token counter is required")

	// ErrTokenization wraps failures of the underlying tokenizer during scoring.
	ErrTokenization = errors.New("tokenization failed")
)

var explanationMarkers = []string{
	"this means",
	"in other words",
	"for example",
	"to illustrate",
	"that is to say",
	"specifically",
}

var (
	listLinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*[-*+]\s+.+$`),
		regexp.MustCompile(`^\s*\d+\.\s+.+$`),
		regexp.MustCompile(`^\s*[a-zA-Z]\.\s+.+$`),
	}

	numberedPrefix = regexp.MustCompile(`^\d+\.`)
	keyValuePrefix = regexp.MustCompile(`^[\p{L}\p{N}_]+\s*:\s*`)

	markdownSyntax = regexp.MustCompile("[#*_`\\[\\](){}]")
	bulletPrefix   = regexp.MustCompile(`(?m)^\s*[-+*]\s+`)
	numberPrefix   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	sentenceSplit  = regexp.MustCompile(`[.!?:\n]+`)

	wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// CompressionScorer computes compression metrics using a token counter.
type CompressionScorer struct {
	counter tokens.Counter
	tracer  trace.Tracer
}

// New creates a scorer backed by counter.
func New(counter tokens.Counter) (*CompressionScorer, error) {
	if counter == nil {
		return nil, ErrNoCounter
	}
	return &CompressionScorer{
		counter: counter,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Score implements Scorer. Blank input yields a zero verbose result that is
// safe to compress.
func (s *CompressionScorer) Score(ctx context.Context, text string) (*Result, error) {
	_, span := s.tracer.Start(ctx, "scoring.score",
		trace.WithAttributes(attribute.Int("content_length", len(text))),
	)
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return &Result{
			Interpretation: InterpretationVerbose,
			SafeToCompress: true,
		}, nil
	}

	m, err := s.Metrics(text)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	score := Combine(m)
	span.SetAttributes(attribute.Float64("overall_score", score))

	return &Result{
		OverallScore:   score,
		Metrics:        m,
		Interpretation: Interpret(score),
		SafeToCompress: score < SafeThreshold,
	}, nil
}

// Metrics computes the six raw metrics for text.
func (s *CompressionScorer) Metrics(text string) (Metrics, error) {
	ids, err := s.encode(text)
	if err != nil {
		return Metrics{}, err
	}
	total := len(ids)
	if total == 0 {
		return Metrics{}, nil
	}

	listDensity, err := s.listDensity(text, total)
	if err != nil {
		return Metrics{}, err
	}
	proseRatio, err := s.proseRatio(text, total)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		ListDensity:        listDensity,
		ProseRatio:         proseRatio,
		AvgSentenceLength:  avgSentenceLength(text),
		Redundancy:         redundancy(text),
		ExplanationMarkers: countMarkers(text),
		InformationEntropy: entropy(ids),
	}, nil
}

func (s *CompressionScorer) encode(text string) ([]uint, error) {
	ids, err := s.counter.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenization, err)
	}
	return ids, nil
}

func (s *CompressionScorer) count(text string) (int, error) {
	ids, err := s.encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *CompressionScorer) listDensity(text string, total int) (float64, error) {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if isListLine(line) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return 0, nil
	}
	n, err := s.count(b.String())
	if err != nil {
		return 0, err
	}
	return math.Min(1, float64(n)/float64(total)), nil
}

func isListLine(line string) bool {
	for _, re := range listLinePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func (s *CompressionScorer) proseRatio(text string, total int) (float64, error) {
	var b strings.Builder
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || isStructural(line) {
			continue
		}
		if isProse(line) {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	prose := b.String()
	if strings.TrimSpace(prose) == "" {
		return 0, nil
	}
	n, err := s.count(prose)
	if err != nil {
		return 0, err
	}
	return math.Min(1, float64(n)/float64(total)), nil
}

// isStructural reports whether a trimmed line is markdown structure rather than prose.
func isStructural(line string) bool {
	switch {
	case strings.HasPrefix(line, "#"),
		strings.HasPrefix(line, "-"),
		strings.HasPrefix(line, "*"),
		strings.HasPrefix(line, "+"),
		strings.HasPrefix(line, "```"),
		strings.HasPrefix(line, "|"),
		strings.HasPrefix(line, "**"),
		strings.HasSuffix(line, ":"),
		strings.Contains(line, "`"):
		return true
	}
	return numberedPrefix.MatchString(line) || keyValuePrefix.MatchString(line)
}

func isProse(line string) bool {
	words := strings.Fields(line)
	if len(words) <= 4 {
		return false
	}
	long := 0
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 {
			long++
		}
	}
	if long <= 2 {
		return false
	}
	return !strings.ContainsAny(line, "()[]{}|`")
}

func avgSentenceLength(text string) float64 {
	clean := markdownSyntax.ReplaceAllString(text, "")
	clean = bulletPrefix.ReplaceAllString(clean, "")
	clean = numberPrefix.ReplaceAllString(clean, "")

	var total, sentences int
	for _, fragment := range sentenceSplit.Split(clean, -1) {
		words := strings.Fields(fragment)
		if len(words) < 2 || allShort(words) {
			continue
		}
		total += len(words)
		sentences++
	}

	if sentences == 0 {
		words := len(strings.Fields(clean))
		if words == 0 {
			return 0
		}
		lines := strings.Count(text, "\n") + 1
		return math.Min(5, float64(words)/float64(max(1, lines)))
	}
	return float64(total) / float64(sentences)
}

func allShort(words []string) bool {
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 {
			return false
		}
	}
	return true
}

func redundancy(text string) float64 {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(words) < 3 {
		return 1
	}

	counts := make(map[string]int, len(words))
	for i := 0; i+2 < len(words); i++ {
		counts[words[i]+" "+words[i+1]+" "+words[i+2]]++
	}

	repeated := 0
	for _, c := range counts {
		if c > 1 {
			repeated++
		}
	}
	return math.Max(0, 1-float64(repeated)/float64(len(counts)))
}

func countMarkers(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, marker := range explanationMarkers {
		n += strings.Count(lower, marker)
	}
	return n
}

func entropy(ids []uint) float64 {
	if len(ids) == 0 {
		return 0
	}
	// Sum over runs of a sorted copy so the additions happen in the same
	// order on every call.
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	total := float64(len(sorted))
	h := 0.0
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		p := float64(j-i) / total
		h -= p * math.Log2(p)
		i = j
	}
	return h
}

// Combine folds metrics into the overall score, clamped to [0,1].
func Combine(m Metrics) float64 {
	sentence := clamp01((25 - m.AvgSentenceLength) / 20)
	markers := clamp01(1 - float64(m.ExplanationMarkers)/3)
	ent := clamp01((m.InformationEntropy - 3.0) / 3.5)

	score := m.ListDensity*0.40 +
		(1-m.ProseRatio)*0.30 +
		sentence*0.15 +
		m.Redundancy*0.05 +
		markers*0.05 +
		ent*0.05

	return clamp01(score)
}

// Interpret maps a score onto its interpretation band.
func Interpret(score float64) Interpretation {
	switch {
	case score < 0.3:
		return InterpretationVerbose
	case score < 0.6:
		return InterpretationModerate
	case score < 0.8:
		return InterpretationCompressed
	default:
		return InterpretationHighlyCompressed
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

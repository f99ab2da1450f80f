package compression

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractiveName is the registry name of the sentence-selection rewriter.
const ExtractiveName = "extractive"

// ExtractiveRewriter keeps the highest-scoring sentences of each prose
// paragraph. Headers, list items, table rows and fenced code pass through
// unchanged.
type ExtractiveRewriter struct{}

// NewExtractiveRewriter returns an ExtractiveRewriter.
func NewExtractiveRewriter() *ExtractiveRewriter {
	return &ExtractiveRewriter{}
}

// Name implements Rewriter.
func (e *ExtractiveRewriter) Name() string { return ExtractiveName }

// Rewrite implements Rewriter. Each paragraph is cut to roughly
// 1 - 0.5*(1-γ) of its length; γ = 1 keeps everything.
func (e *ExtractiveRewriter) Rewrite(ctx context.Context, text string, p Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	keep := 1 - 0.5*(1-p.Gamma)

	var (
		out       []string
		paragraph []string
		inFence   bool
	)
	flush := func() {
		if len(paragraph) > 0 {
			out = append(out, e.condense(strings.Join(paragraph, " "), keep))
			paragraph = paragraph[:0]
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			flush()
			inFence = !inFence
			out = append(out, line)
			continue
		}
		switch {
		case inFence:
			out = append(out, line)
		case trimmed == "":
			flush()
			out = append(out, "")
		case isStructuralLine(trimmed):
			flush()
			out = append(out, line)
		default:
			paragraph = append(paragraph, trimmed)
		}
	}
	flush()
	return strings.Join(out, "\n"), nil
}

func isStructuralLine(trimmed string) bool {
	return hasAnyPrefix(trimmed, []string{"#", "- ", "* ", "+ ", "|", ">"}) || numberedRegex.MatchString(trimmed)
}

// condense selects sentences up to keep * len(paragraph) runes, in
// original order. At least one sentence is always kept.
func (e *ExtractiveRewriter) condense(paragraph string, keep float64) string {
	sentences := splitSentences(paragraph)
	if len(sentences) <= 1 || keep >= 1 {
		return paragraph
	}

	scores := scoreSentences(sentences)
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	target := int(float64(utf8.RuneCountInString(paragraph)) * keep)
	chosen := make([]bool, len(sentences))
	length, picked := 0, 0
	for _, i := range order {
		n := utf8.RuneCountInString(sentences[i])
		if length+n <= target {
			chosen[i] = true
			length += n + 1
			picked++
		}
	}
	if picked == 0 {
		chosen[order[0]] = true
	}

	kept := make([]string, 0, len(sentences))
	for i, s := range sentences {
		if chosen[i] {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, " ")
}

// splitSentences breaks on . ! ? once the running sentence is longer than
// ten bytes, so abbreviations like "e.g." rarely split.
func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); len(s) > 10 {
				sentences = append(sentences, s)
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// scoreSentences weights position 0.3, length 0.4 (peaking at 20 words)
// and inverse word frequency 0.3.
func scoreSentences(sentences []string) []float64 {
	freq := wordFrequency(sentences)
	scores := make([]float64, len(sentences))

	for i, sentence := range sentences {
		score := 0.3 / (float64(i) + 1)

		words := strings.Fields(sentence)
		lengthScore := math.Min(float64(len(words))/20, 1)
		if len(words) > 20 {
			lengthScore = math.Max(1-(float64(len(words))-20)/50, 0.1)
		}
		score += lengthScore * 0.4

		var freqScore float64
		for _, w := range words {
			if f := freq[normalizeWord(w)]; f > 1 {
				freqScore += 1 / float64(f)
			}
		}
		if len(words) > 0 {
			freqScore /= float64(len(words))
		}
		scores[i] = score + freqScore*0.3
	}
	return scores
}

func wordFrequency(sentences []string) map[string]int {
	freq := make(map[string]int)
	for _, s := range sentences {
		for _, w := range strings.Fields(s) {
			if w = normalizeWord(w); len(w) > 2 {
				freq[w]++
			}
		}
	}
	return freq
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}

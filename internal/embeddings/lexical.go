package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultLexicalDimension = 256

var lexicalWord = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// LexicalProvider embeds text by hashing lower-cased words and adjacent word
// pairs into a fixed number of signed buckets. Vectors are L2-normalized, so
// cosine similarity reflects shared vocabulary rather than length.
type LexicalProvider struct {
	dimension int
}

// NewLexicalProvider returns a provider producing vectors of size dim
// (256 when dim <= 0).
func NewLexicalProvider(dim int) *LexicalProvider {
	if dim <= 0 {
		dim = defaultLexicalDimension
	}
	return &LexicalProvider{dimension: dim}
}

// EmbedDocuments implements Provider.
func (p *LexicalProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(text)
	}
	return out, nil
}

// EmbedQuery implements Provider.
func (p *LexicalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

// Dimension implements Provider.
func (p *LexicalProvider) Dimension() int {
	return p.dimension
}

// Close implements Provider.
func (p *LexicalProvider) Close() error {
	return nil
}

func (p *LexicalProvider) vector(text string) []float32 {
	vec := make([]float64, p.dimension)
	words := lexicalWord.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		p.add(vec, "w:"+w, 1)
		if i > 0 {
			p.add(vec, "b:"+words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (p *LexicalProvider) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := sum % uint64(p.dimension)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

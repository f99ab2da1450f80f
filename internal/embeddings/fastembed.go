//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	// Model is one of the names in localModels.
	Model string
	// CacheDir holds downloaded model files (default ./local_cache).
	CacheDir string
	// MaxLength is the input length in model tokens; longer documents are
	// truncated by the model (default 512).
	MaxLength int
}

// localModels are the English sentence models fastembed ships. Both the
// hub names and fastembed's own aliases are accepted.
var localModels = map[string]fastembed.EmbeddingModel{
	DefaultModel:             fastembed.AllMiniLML6V2,
	"fast-all-MiniLM-L6-v2":  fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5": fastembed.BGESmallENV15,
	"fast-bge-small-en-v1.5": fastembed.BGESmallENV15,
	"BAAI/bge-small-en":      fastembed.BGESmallEN,
	"fast-bge-small-en":      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":  fastembed.BGEBaseENV15,
	"fast-bge-base-en-v1.5":  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":       fastembed.BGEBaseEN,
	"fast-bge-base-en":       fastembed.BGEBaseEN,
}

// documentBatch is the fastembed batch size. Comparisons embed two texts,
// so this only matters for callers embedding a corpus.
const documentBatch = 32

// FastEmbedProvider embeds text with a local ONNX model.
type FastEmbedProvider struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding
	dimension int
}

// NewFastEmbedProvider loads the model, downloading it into CacheDir on
// first use. An unknown model or missing ONNX runtime is an error.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	m, ok := localModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported model %q", ErrInvalidConfig, cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}

	quiet := false
	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                m,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("load fastembed model %s: %w", cfg.Model, err)
	}
	return &FastEmbedProvider{model: model, dimension: detectDimensionFromModel(cfg.Model)}, nil
}

// EmbedDocuments embeds texts as passages.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmptyInput)
	}
	return p.embed(ctx, func(m *fastembed.FlagEmbedding) ([][]float32, error) {
		return m.PassageEmbed(texts, documentBatch)
	})
}

// EmbedQuery embeds text with the query prefix.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmptyInput)
	}
	vecs, err := p.embed(ctx, func(m *fastembed.FlagEmbedding) ([][]float32, error) {
		v, err := m.QueryEmbed(text)
		return [][]float32{v}, err
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *FastEmbedProvider) embed(ctx context.Context, fn func(*fastembed.FlagEmbedding) ([][]float32, error)) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}
	vecs, err := fn(p.model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vecs, nil
}

func (p *FastEmbedProvider) Dimension() int { return p.dimension }

// Close frees the ONNX session. Later calls fail with ErrEmbeddingFailed.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}

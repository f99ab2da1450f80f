package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider generates embeddings.
type Provider interface {
	// EmbedDocuments embeds a batch of passages.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Provider names accepted by NewProvider.
const (
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"
	ProviderLexical   = "lexical"
)

// DefaultModel is the sentence model used when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "fastembed", "tei" or "lexical".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI URL (tei only).
	BaseURL string
	// APIKey is sent as a bearer token (tei only).
	APIKey string
	// RateLimit caps TEI requests per second; zero disables limiting.
	RateLimit float64
	// Burst is the TEI limiter burst size.
	Burst int
	// Timeout bounds each TEI HTTP request.
	Timeout time.Duration
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// Dimension sets the vector size (lexical only).
	Dimension int
	// CacheSize enables an LRU of query embeddings when positive.
	CacheSize int
}

var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	default:
		return 384
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderFastEmbed, "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case ProviderTEI:
		var svc *Service
		svc, err = NewService(Config{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
			Timeout:   cfg.Timeout,
		})
		if err == nil {
			p = &teiProvider{Service: svc, dimension: detectDimensionFromModel(cfg.Model)}
		}
	case ProviderLexical:
		p = NewLexicalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCachedProvider(p, cfg.CacheSize)
	}
	return p, nil
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}

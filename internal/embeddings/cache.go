package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider memoises embeddings by the SHA-256 of their text.
type CachedProvider struct {
	Provider
	cache   *lru.Cache[string, []float32]
	metrics *Metrics
}

// NewCachedProvider wraps p with an LRU holding up to size vectors.
func NewCachedProvider(p Provider, size int) (*CachedProvider, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("%w: cache size: %v", ErrInvalidConfig, err)
	}
	return &CachedProvider{
		Provider: p,
		cache:    cache,
		metrics:  NewMetrics(nil),
	}, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedQuery returns a cached vector or delegates and stores the result.
func (c *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey("q:" + text)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheLookup(ctx, true)
		return v, nil
	}
	c.metrics.RecordCacheLookup(ctx, false)

	v, err := c.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// EmbedDocuments serves cached passages and embeds only the misses in one batch.
func (c *CachedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(cacheKey("d:" + text)); ok {
			c.metrics.RecordCacheLookup(ctx, true)
			out[i] = v
			continue
		}
		c.metrics.RecordCacheLookup(ctx, false)
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.Provider.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		c.cache.Add(cacheKey("d:"+missing[j]), v)
	}
	return out, nil
}

// Len reports the number of cached vectors.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

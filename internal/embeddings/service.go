package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrEmptyInput      = errors.New("empty or nil input texts")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Config points a Service at a Text Embeddings Inference server.
type Config struct {
	BaseURL string
	Model   string // reported in metrics only; TEI serves one model
	APIKey  string // sent as a bearer token when set

	// RateLimit is requests per second, 0 for unlimited. Burst defaults to 1.
	RateLimit float64
	Burst     int

	Timeout time.Duration // per request, default 30s
}

func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	case c.RateLimit < 0:
		return fmt.Errorf("%w: rate limit must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Service calls POST {BaseURL}/embed.
type Service struct {
	endpoint string
	config   Config
	client   *http.Client
	limiter  *rate.Limiter
	metrics  *Metrics
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Service{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/embed",
		config:   cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		metrics:  NewMetrics(nil),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return s, nil
}

func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return s.timed(ctx, "embed_documents", len(texts), func() ([][]float32, error) {
		if len(texts) == 0 {
			return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		}
		vecs, err := s.post(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vecs), len(texts))
		}
		return vecs, err
	})
}

func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.timed(ctx, "embed_query", 1, func() ([][]float32, error) {
		if text == "" {
			return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		}
		vecs, err := s.post(ctx, text)
		if err == nil && len(vecs) == 0 {
			err = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		}
		return vecs, err
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *Service) timed(ctx context.Context, op string, batch int, fn func() ([][]float32, error)) ([][]float32, error) {
	start := time.Now()
	vecs, err := fn()
	s.metrics.RecordGeneration(ctx, s.config.Model, op, time.Since(start), batch, err)
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// post sends inputs, a string or a []string, with truncation on so
// documents longer than the model window still embed.
func (s *Service) post(ctx context.Context, inputs any) ([][]float32, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
	}

	body, err := json.Marshal(map[string]any{"inputs": inputs, "truncate": true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var vecs [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vecs, nil
}

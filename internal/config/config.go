// Package config loads ctxcompress configuration from defaults, an
// optional YAML file and CTXCOMPRESS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete ctxcompress configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Safety        SafetyConfig        `koanf:"safety"`
	Drift         DriftConfig         `koanf:"drift"`
	Analyzer      AnalyzerConfig      `koanf:"analyzer"`
	Tokenizer     TokenizerConfig     `koanf:"tokenizer"`
	Entities      EntitiesConfig      `koanf:"entities"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Audit         AuditConfig         `koanf:"audit"`
	Rewrite       RewriteConfig       `koanf:"rewrite"`
	Convergence   ConvergenceConfig   `koanf:"convergence"`
	Watch         WatchConfig         `koanf:"watch"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RateLimit       float64  `koanf:"rate_limit"` // requests per second, 0 disables
	Burst           int      `koanf:"burst"`
	MaxBodyBytes    int64    `koanf:"max_body_bytes"`
}

// SafetyConfig holds the safety validator thresholds.
type SafetyConfig struct {
	RefusalThreshold  float64 `koanf:"refusal_threshold"`
	EntityThreshold   float64 `koanf:"entity_threshold"`
	BenefitThreshold  float64 `koanf:"benefit_threshold"`
	SemanticThreshold float64 `koanf:"semantic_threshold"`
}

// DriftConfig holds drift ratio bands.
type DriftConfig struct {
	FlagRatio     float64 `koanf:"flag_ratio"`
	ReviewRatio   float64 `koanf:"review_ratio"`
	CompressRatio float64 `koanf:"compress_ratio"`
}

// AnalyzerConfig holds section classification settings.
type AnalyzerConfig struct {
	VerboseThreshold    float64 `koanf:"verbose_threshold"`
	CompressedThreshold float64 `koanf:"compressed_threshold"`
	MinSectionTokens    int     `koanf:"min_section_tokens"`
	MergeShortSections  bool    `koanf:"merge_short_sections"`
}

// TokenizerConfig selects the token encoding.
type TokenizerConfig struct {
	Encoding string `koanf:"encoding"`
}

// EntitiesConfig controls named entity recognition.
type EntitiesConfig struct {
	Timeout Duration `koanf:"timeout"`
}

// EmbeddingsConfig selects and tunes the semantic similarity backend.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"` // fastembed, tei or lexical
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	RateLimit float64  `koanf:"rate_limit"`
	Burst     int      `koanf:"burst"`
	Timeout   Duration `koanf:"timeout"`
	CacheDir  string   `koanf:"cache_dir"`
	CacheSize int      `koanf:"cache_size"`
	Dimension int      `koanf:"dimension"`
}

// AuditConfig controls the verdict log.
type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// RewriteConfig controls the rewriting collaborators.
type RewriteConfig struct {
	Default   string `koanf:"default"`
	RulesFile string `koanf:"rules_file"`
}

// ConvergenceConfig controls the convergence harness.
type ConvergenceConfig struct {
	MaxRounds   int    `koanf:"max_rounds"`
	QuickRounds int    `koanf:"quick_rounds"`
	Workers     int    `koanf:"workers"`
	OutputDir   string `koanf:"output_dir"`
	Archive     bool   `koanf:"archive"`
}

// WatchConfig controls the drift watcher.
type WatchConfig struct {
	Debounce Duration `koanf:"debounce"`
}

// ObservabilityConfig holds OpenTelemetry settings.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"` // grpc or http
	Insecure        bool    `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// LoggingConfig holds the logger settings exposed in the file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8787,
			ShutdownTimeout: Duration(10 * time.Second),
			RateLimit:       20,
			Burst:           40,
			MaxBodyBytes:    4 << 20,
		},
		Safety: SafetyConfig{
			RefusalThreshold:  0.8,
			EntityThreshold:   0.80,
			BenefitThreshold:  0.85,
			SemanticThreshold: 0.75,
		},
		Drift: DriftConfig{
			FlagRatio:     1.15,
			ReviewRatio:   1.25,
			CompressRatio: 1.50,
		},
		Analyzer: AnalyzerConfig{
			VerboseThreshold:    0.4,
			CompressedThreshold: 0.7,
			MinSectionTokens:    3,
		},
		Tokenizer: TokenizerConfig{Encoding: "cl100k_base"},
		Entities:  EntitiesConfig{Timeout: Duration(10 * time.Second)},
		Embeddings: EmbeddingsConfig{
			Provider:  "fastembed",
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:   "http://localhost:8080",
			Timeout:   Duration(30 * time.Second),
			CacheSize: 512,
		},
		Rewrite: RewriteConfig{Default: "rules"},
		Convergence: ConvergenceConfig{
			MaxRounds:   30,
			QuickRounds: 10,
			Workers:     4,
			OutputDir:   "convergence_results",
		},
		Watch: WatchConfig{Debounce: Duration(500 * time.Millisecond)},
		Observability: ObservabilityConfig{
			ServiceName: "ctxcompress",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0, got %v", c.Server.RateLimit)
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"safety.refusal_threshold", c.Safety.RefusalThreshold},
		{"safety.entity_threshold", c.Safety.EntityThreshold},
		{"safety.benefit_threshold", c.Safety.BenefitThreshold},
		{"safety.semantic_threshold", c.Safety.SemanticThreshold},
		{"analyzer.verbose_threshold", c.Analyzer.VerboseThreshold},
		{"analyzer.compressed_threshold", c.Analyzer.CompressedThreshold},
		{"observability.sample_rate", c.Observability.SampleRate},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", f.name, f.value)
		}
	}
	if c.Analyzer.VerboseThreshold >= c.Analyzer.CompressedThreshold {
		return fmt.Errorf("analyzer.verbose_threshold (%v) must be below compressed_threshold (%v)",
			c.Analyzer.VerboseThreshold, c.Analyzer.CompressedThreshold)
	}
	if c.Analyzer.MinSectionTokens < 0 {
		return fmt.Errorf("analyzer.min_section_tokens must be >= 0, got %d", c.Analyzer.MinSectionTokens)
	}

	d := c.Drift
	if !(d.FlagRatio > 1 && d.FlagRatio < d.ReviewRatio && d.ReviewRatio < d.CompressRatio) {
		return fmt.Errorf("drift ratios must satisfy 1 < flag < review < compress, got %v/%v/%v",
			d.FlagRatio, d.ReviewRatio, d.CompressRatio)
	}

	if c.Tokenizer.Encoding != "cl100k_base" {
		return fmt.Errorf("unsupported tokenizer encoding %q (only cl100k_base)", c.Tokenizer.Encoding)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "lexical":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings.rate_limit must be >= 0, got %v", c.Embeddings.RateLimit)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be >= 0, got %d", c.Embeddings.CacheSize)
	}

	if c.Convergence.MaxRounds < 1 || c.Convergence.QuickRounds < 1 {
		return errors.New("convergence rounds must be positive")
	}
	if c.Convergence.Workers < 1 {
		return fmt.Errorf("convergence.workers must be >= 1, got %d", c.Convergence.Workers)
	}

	if c.Observability.EnableTelemetry {
		if c.Observability.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if p := c.Observability.Protocol; p != "grpc" && p != "http" {
			return fmt.Errorf("observability.protocol must be grpc or http, got %q", p)
		}
	}

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/Dudley70/compression-framework/internal/analyzer"
	"github.com/Dudley70/compression-framework/internal/audit"
	"github.com/Dudley70/compression-framework/internal/compression"
	"github.com/Dudley70/compression-framework/internal/config"
	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/embeddings"
	"github.com/Dudley70/compression-framework/internal/entities"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/scoring"
	"github.com/Dudley70/compression-framework/internal/telemetry"
	"github.com/Dudley70/compression-framework/internal/tokens"
)

// app holds configuration and the backends commands share. Backends are
// built on first use so that cheap commands never load a NER model or an
// embedding runtime.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry

	counter   tokens.Counter
	scorer    *scoring.CompressionScorer
	provider  embeddings.Provider
	store     *audit.Store
	validator *safety.Validator
	detector  *drift.Detector
	analyzer  *analyzer.Analyzer
	registry  *compression.Registry
	service   *compression.Service
}

func newApp(ctx context.Context, path, level string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	lc, err := loggingConfig(cfg)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	var lp log.LoggerProvider
	if cfg.Logging.OTEL {
		if lp = tel.LoggerProvider(); lp == nil {
			lp = global.GetLoggerProvider()
		}
	}
	logger, err := logging.NewLogger(lc, lp)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if h := tel.Health(); !h.Healthy {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}
	return &app{cfg: cfg, logger: logger, tel: tel}, nil
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	o := cfg.Observability
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = o.EnableTelemetry
	tc.ServiceName = o.ServiceName
	tc.ServiceVersion = version
	tc.Endpoint = o.Endpoint
	tc.Protocol = o.Protocol
	tc.Insecure = o.Insecure
	tc.SampleRate = o.SampleRate
	return tc
}

func loggingConfig(cfg *config.Config) (*logging.Config, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	lc.Level = level
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	lc.Output.OTEL = cfg.Logging.OTEL
	lc.Fields["version"] = version
	return lc, nil
}

func (a *app) tokenCounter() (tokens.Counter, error) {
	if a.counter == nil {
		c, err := tokens.NewTiktoken()
		if err != nil {
			return nil, err
		}
		a.counter = c
	}
	return a.counter, nil
}

func (a *app) compressionScorer() (*scoring.CompressionScorer, error) {
	if a.scorer == nil {
		counter, err := a.tokenCounter()
		if err != nil {
			return nil, err
		}
		if a.scorer, err = scoring.New(counter); err != nil {
			return nil, err
		}
	}
	return a.scorer, nil
}

func (a *app) similarity() (*embeddings.Comparator, error) {
	e := a.cfg.Embeddings
	if a.provider == nil {
		p, err := embeddings.NewProvider(embeddings.ProviderConfig{
			Provider:  e.Provider,
			Model:     e.Model,
			BaseURL:   e.BaseURL,
			APIKey:    e.APIKey.Value(),
			RateLimit: e.RateLimit,
			Burst:     e.Burst,
			Timeout:   e.Timeout.Duration(),
			CacheDir:  e.CacheDir,
			Dimension: e.Dimension,
			CacheSize: e.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		a.provider = p
		a.logger.Debug(context.Background(), "embedding provider ready",
			zap.String("provider", e.Provider),
			zap.String("model", e.Model),
			zap.Int("dimension", p.Dimension()),
		)
	}
	return embeddings.NewComparator(a.provider, e.Timeout.Duration(),
		embeddings.WithMeterProvider(a.tel.MeterProvider()),
	)
}

func auditPath(cfg *config.Config) (string, error) {
	if cfg.Audit.Path != "" {
		return cfg.Audit.Path, nil
	}
	dir, err := config.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.db"), nil
}

func (a *app) auditStore() (*audit.Store, error) {
	if a.store == nil {
		path, err := auditPath(a.cfg)
		if err != nil {
			return nil, err
		}
		if a.store, err = audit.Open(path, audit.WithLogger(a.logger)); err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}
	return a.store, nil
}

func (a *app) safetyValidator() (*safety.Validator, error) {
	if a.validator != nil {
		return a.validator, nil
	}
	scorer, err := a.compressionScorer()
	if err != nil {
		return nil, err
	}
	extractor, err := entities.NewExtractor(entities.NewProseRecognizer(),
		entities.WithTimeout(a.cfg.Entities.Timeout.Duration()))
	if err != nil {
		return nil, err
	}
	sim, err := a.similarity()
	if err != nil {
		return nil, err
	}

	s := a.cfg.Safety
	opts := []safety.Option{
		safety.WithThresholds(safety.Thresholds{
			Refusal:  s.RefusalThreshold,
			Entity:   s.EntityThreshold,
			Benefit:  s.BenefitThreshold,
			Semantic: s.SemanticThreshold,
		}),
		safety.WithLogger(a.logger),
		safety.WithTracerProvider(a.tel.TracerProvider()),
		safety.WithMeterProvider(a.tel.MeterProvider()),
	}
	if a.cfg.Audit.Enabled {
		store, err := a.auditStore()
		if err != nil {
			return nil, err
		}
		opts = append(opts, safety.WithRecorder(store))
	}

	a.validator, err = safety.NewValidator(safety.Backends{
		Scorer:     scorer,
		Counter:    a.counter,
		Entities:   extractor,
		Similarity: sim,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return a.validator, nil
}

func (a *app) driftDetector() (*drift.Detector, error) {
	if a.detector == nil {
		counter, err := a.tokenCounter()
		if err != nil {
			return nil, err
		}
		d := a.cfg.Drift
		a.detector, err = drift.NewDetector(counter, drift.WithThresholds(drift.Thresholds{
			Flag:     d.FlagRatio,
			Review:   d.ReviewRatio,
			Compress: d.CompressRatio,
		}))
		if err != nil {
			return nil, err
		}
	}
	return a.detector, nil
}

func (a *app) contentAnalyzer() (*analyzer.Analyzer, error) {
	if a.analyzer != nil {
		return a.analyzer, nil
	}
	scorer, err := a.compressionScorer()
	if err != nil {
		return nil, err
	}
	det, err := a.driftDetector()
	if err != nil {
		return nil, err
	}
	opts := analyzer.DefaultOptions()
	opts.VerboseThreshold = a.cfg.Analyzer.VerboseThreshold
	opts.CompressedThreshold = a.cfg.Analyzer.CompressedThreshold
	opts.MinSectionTokens = a.cfg.Analyzer.MinSectionTokens
	opts.MergeShortSections = a.cfg.Analyzer.MergeShortSections

	a.analyzer, err = analyzer.New(scorer, a.counter, analyzer.WithOptions(opts), analyzer.WithDriftDetector(det))
	if err != nil {
		return nil, err
	}
	return a.analyzer, nil
}

func (a *app) rewriters() (*compression.Registry, error) {
	if a.registry == nil {
		rules := compression.DefaultRules()
		if path := a.cfg.Rewrite.RulesFile; path != "" {
			var err error
			if rules, err = compression.LoadRulesFile(path); err != nil {
				return nil, err
			}
		}
		a.registry = compression.DefaultRegistry(rules)
	}
	return a.registry, nil
}

func (a *app) compressor() (*compression.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	v, err := a.safetyValidator()
	if err != nil {
		return nil, err
	}
	reg, err := a.rewriters()
	if err != nil {
		return nil, err
	}
	a.service, err = compression.NewService(a.scorer, v, reg,
		compression.WithServiceLogger(a.logger),
		compression.WithServiceTracerProvider(a.tel.TracerProvider()),
		compression.WithServiceMeterProvider(a.tel.MeterProvider()),
	)
	if err != nil {
		return nil, err
	}
	return a.service, nil
}

// close releases the backends and flushes telemetry.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.provider != nil {
		errs = append(errs, a.provider.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync()
}

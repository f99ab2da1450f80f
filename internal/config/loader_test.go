package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, t.TempDir(), `
server:
  port: 9100
  shutdown_timeout: 3s
safety:
  entity_threshold: 0.9
drift:
  review_ratio: 1.3
analyzer:
  merge_short_sections: true
embeddings:
  provider: tei
  api_key: sk-test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.InDelta(t, 0.9, cfg.Safety.EntityThreshold, 1e-9)
	assert.InDelta(t, 0.85, cfg.Safety.BenefitThreshold, 1e-9, "unset keys keep defaults")
	assert.InDelta(t, 1.3, cfg.Drift.ReviewRatio, 1e-9)
	assert.True(t, cfg.Analyzer.MergeShortSections)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Embeddings.APIKey.String())
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, t.TempDir(), "safety:\n  entity_threshold: 0.9\n")
	t.Setenv("CTXCOMPRESS_SAFETY_ENTITY_THRESHOLD", "0.7")
	t.Setenv("CTXCOMPRESS_SERVER_PORT", "9200")
	t.Setenv("CTXCOMPRESS_WATCH_DEBOUNCE", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.Safety.EntityThreshold, 1e-9)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce.Duration())
}

func TestLoad_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "ctxcompress")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	writeConfig(t, dir, "convergence:\n  max_rounds: 12\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Convergence.MaxRounds)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "explicit missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			wantErr: "config file rejected",
		},
		{
			name:    "directory",
			path:    func(t *testing.T) string { return t.TempDir() },
			wantErr: "not a regular file",
		},
		{
			name: "too large",
			path: func(t *testing.T) string {
				return writeConfig(t, t.TempDir(), "# "+strings.Repeat("x", maxConfigFileSize))
			},
			wantErr: "too large",
		},
		{
			name:    "invalid yaml",
			path:    func(t *testing.T) string { return writeConfig(t, t.TempDir(), "server: [unclosed") },
			wantErr: "failed to load config file",
		},
		{
			name:    "invalid values",
			path:    func(t *testing.T) string { return writeConfig(t, t.TempDir(), "safety:\n  semantic_threshold: 1.5\n") },
			wantErr: "safety.semantic_threshold must be in [0,1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "safety.entity_threshold", envKey("CTXCOMPRESS_SAFETY_ENTITY_THRESHOLD"))
	assert.Equal(t, "server.port", envKey("CTXCOMPRESS_SERVER_PORT"))
	assert.Equal(t, "config", envKey("CTXCOMPRESS_CONFIG"))
}

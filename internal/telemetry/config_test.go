package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "ctxcompress", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.ExportMetrics)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func enabled(mod func(*Config)) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	mod(cfg)
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		errMsg string
	}{
		{name: "default", config: NewDefaultConfig()},
		{name: "disabled skips validation", config: &Config{}},
		{name: "enabled default", config: enabled(func(*Config) {})},
		{
			name:   "missing endpoint",
			config: enabled(func(c *Config) { c.Endpoint = "" }),
			errMsg: "endpoint is required",
		},
		{
			name:   "missing service name",
			config: enabled(func(c *Config) { c.ServiceName = "" }),
			errMsg: "service_name is required",
		},
		{
			name:   "missing service version",
			config: enabled(func(c *Config) { c.ServiceVersion = "" }),
			errMsg: "service_version is required",
		},
		{
			name:   "unknown protocol",
			config: enabled(func(c *Config) { c.Protocol = "udp" }),
			errMsg: `protocol must be "grpc" or "http"`,
		},
		{
			name:   "http protocol",
			config: enabled(func(c *Config) { c.Protocol = ProtocolHTTP }),
		},
		{
			name:   "sampling rate too low",
			config: enabled(func(c *Config) { c.SampleRate = -0.1 }),
			errMsg: "sample_rate must be between 0 and 1",
		},
		{
			name:   "sampling rate too high",
			config: enabled(func(c *Config) { c.SampleRate = 1.1 }),
			errMsg: "sample_rate must be between 0 and 1",
		},
		{
			name:   "zero export interval",
			config: enabled(func(c *Config) { c.MetricInterval = 0 }),
			errMsg: "metric_interval must be positive",
		},
		{
			name: "zero export interval with metrics off",
			config: enabled(func(c *Config) {
				c.ExportMetrics = false
				c.MetricInterval = 0
			}),
		},
		{
			name:   "zero shutdown timeout",
			config: enabled(func(c *Config) { c.ShutdownTimeout = 0 }),
			errMsg: "shutdown_timeout must be positive",
		},
		{
			name: "tls to remote collector",
			config: enabled(func(c *Config) {
				c.Endpoint = "collector.prod:4317"
				c.Insecure = false
			}),
		},
		{
			name:   "insecure to remote collector",
			config: enabled(func(c *Config) { c.Endpoint = "collector.prod:4317" }),
			errMsg: "insecure connections to remote endpoints are not allowed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		isLocal  bool
	}{
		{"localhost:4317", true},
		{"localhost", true},
		{"http://localhost:4318", true},
		{"127.0.0.1:4317", true},
		{"127.0.0.1", true},
		{"127.0.1.1:4317", true},
		{"[::1]:4317", true},
		{"::1:4317", true},
		{"::1", true},
		{"collector.prod:4317", false},
		{"https://otel.example.com:4318", false},
		{"192.168.1.1:4317", false},
		{"10.0.0.1:4317", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.isLocal, cfg.isLocalEndpoint())
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := &Config{Enabled: true, SampleRate: 2}
	err := cfg.Validate()
	require.Error(t, err)
	for _, msg := range []string{"endpoint is required", "service_name is required", "sample_rate", "shutdown_timeout"} {
		assert.Contains(t, err.Error(), msg)
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4317", stripScheme("otel:4317"))
}

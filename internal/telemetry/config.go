package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config drives OTLP export. The zero value exports nothing; New then
// installs in-process providers only.
type Config struct {
	Enabled        bool
	Endpoint       string // host:port; an http(s):// prefix is tolerated
	Protocol       string // grpc (default) or http
	ServiceName    string
	ServiceVersion string

	// Insecure sends plaintext and is only accepted for loopback endpoints.
	Insecure      bool
	TLSSkipVerify bool

	SampleRate      float64 // trace ratio in [0, 1]
	ExportMetrics   bool
	MetricInterval  time.Duration
	ShutdownTimeout time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		ServiceName:     "ctxcompress",
		ServiceVersion:  "0.1.0",
		Insecure:        true,
		SampleRate:      1,
		ExportMetrics:   true,
		MetricInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks an enabled config; a disabled one always passes.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	req := func(v, name string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required when telemetry is enabled", name))
		}
	}
	req(c.Endpoint, "endpoint")
	req(c.ServiceName, "service_name")
	req(c.ServiceVersion, "service_version")

	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		errs = append(errs, fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol))
	}
	if c.Endpoint != "" && c.Insecure && !c.isLocalEndpoint() {
		errs = append(errs, errors.New("insecure connections to remote endpoints are not allowed; use TLS or a loopback endpoint"))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 0 and 1, got %g", c.SampleRate))
	}
	if c.ExportMetrics && c.MetricInterval <= 0 {
		errs = append(errs, errors.New("metric_interval must be positive when metrics are exported"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	// An unbracketed "::1:4317" fails SplitHostPort.
	if host == "localhost" || strings.HasPrefix(host, "::1:") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme yields the host:port form the OTLP exporters expect.
func stripScheme(endpoint string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if rest, ok := strings.CutPrefix(endpoint, scheme); ok {
			return rest
		}
	}
	return endpoint
}

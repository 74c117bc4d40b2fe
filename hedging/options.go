package hedging

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/hedging-go/hedging"
)

// Config holds the HTTP transport configuration parameters for a Client.
// Use DefaultConfig() as a starting point, then modify fields as needed.
//
// Only timeout and TLS behavior is exposed here; connection pool management
// is left entirely to net/http.
type Config struct {
	// Timeout limits the entire request lifecycle, which for a hedged call
	// means the whole race. Zero means no client-side ceiling; the hedge
	// delays are soft timers, not a deadline.
	//
	// Default: 15s
	Timeout time.Duration

	// DialTimeout is the maximum time to establish a TCP connection.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// TLSHandshakeTimeout is the maximum time for a TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ForceHTTP2 forces HTTP/2 (requires HTTPS). Multiplexing hedged
	// attempts over one connection keeps the duplicate load cheap.
	//
	// Default: false (negotiated via ALPN)
	ForceHTTP2 bool
}

// DefaultConfig returns a balanced transport configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:             15 * time.Second,
		DialTimeout:         5 * time.Second,
		KeepAlive:           30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// LowLatencyConfig returns a configuration for latency-sensitive callers,
// the typical users of hedging: short timeouts, quick dial, HTTP/2.
func LowLatencyConfig() Config {
	return Config{
		Timeout:             5 * time.Second,
		DialTimeout:         2 * time.Second,
		KeepAlive:           15 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		ForceHTTP2:          true,
	}
}

// internalConfig holds all client configuration including hedging policy and
// OTel settings.
type internalConfig struct {
	httpConfig Config

	// HedgeConfig drives the timing policy of the dispatcher.
	HedgeConfig HedgeConfig

	// Tracker, when set, replaces the client-owned latency tracker. Share
	// one tracker across clients hitting the same backends.
	Tracker *LatencyTracker

	// Budget caps the rate of hedge attempts.
	Budget BudgetConfig

	// Coalesce enables in-flight deduplication of identical dispatches.
	Coalesce bool

	// BaseURL is prepended to relative paths by the request helpers.
	BaseURL string

	// ServiceName identifies the client in traces and metrics.
	ServiceName string

	// Debug enables zerolog debug output per dispatch.
	Debug bool

	// TLSConfig specifies the TLS configuration, nil for defaults.
	TLSConfig *tls.Config

	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// Attribution selects the latency fed back for adaptive learning.
	Attribution Attribution

	// MockTransport replaces the network transport entirely in tests.
	MockTransport *MockTransport

	Tracer  trace.Tracer
	Meter   metric.Meter
	Metrics *metrics
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		HedgeConfig:    DefaultHedgeConfig(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates an http.Transport from the configuration.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}

	return &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: hc.TLSHandshakeTimeout,
		TLSClientConfig:     cfg.TLSConfig,
		ForceAttemptHTTP2:   hc.ForceHTTP2,
		Proxy:               http.ProxyFromEnvironment,
	}
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// Option configures the hedging client.
type Option func(*internalConfig)

// WithConfig sets the HTTP transport configuration. Use DefaultConfig() or
// LowLatencyConfig() as a starting point.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithHedgeConfig sets the hedging policy configuration. Invalid
// configurations (a hedge fraction outside (0,1), non-positive SLO) cause
// New to fail with an error wrapping ErrInvalidConfig.
func WithHedgeConfig(c HedgeConfig) Option {
	return func(cfg *internalConfig) {
		cfg.HedgeConfig = c
	}
}

// WithHedgingDisabled turns hedging off; the client behaves like a plain
// instrumented http.Client.
func WithHedgingDisabled() Option {
	return func(cfg *internalConfig) {
		cfg.HedgeConfig = HedgeConfig{}
	}
}

// WithTracker shares a latency tracker across clients. Without this option
// an adaptive client owns a private tracker sized by the hedge config.
func WithTracker(t *LatencyTracker) Option {
	return func(cfg *internalConfig) {
		cfg.Tracker = t
	}
}

// WithBudget caps the global rate of hedge attempts issued by the client.
func WithBudget(b BudgetConfig) Option {
	return func(cfg *internalConfig) {
		cfg.Budget = b
	}
}

// WithCoalescing deduplicates identical in-flight dispatches: concurrent
// callers of the same method+URL+body share a single hedged race.
func WithCoalescing() Option {
	return func(cfg *internalConfig) {
		cfg.Coalesce = true
	}
}

// WithBaseURL sets the base URL prepended to relative paths by Get and the
// other request helpers.
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithServiceName sets an identifier for this client, added as the
// "http.client.name" attribute on all spans and metrics.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithAttribution selects which latency a winning dispatch records for
// adaptive learning. Default: AttributionRace.
func WithAttribution(a Attribution) Option {
	return func(cfg *internalConfig) {
		cfg.Attribution = a
	}
}

// WithDebug enables per-dispatch debug logging via zerolog.
func WithDebug() Option {
	return func(cfg *internalConfig) {
		cfg.Debug = true
	}
}

// WithTLSConfig sets a custom TLS configuration.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider. If not
// called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider. If not
// called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithMockTransport replaces the network transport for tests. The hedging
// chain is still built on top of the mock.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}

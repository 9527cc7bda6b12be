package httpclient

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/courier/httpclient"
)

// =============================================================================
// Config - Connection Pool Configuration
// =============================================================================

// Config holds connection pool and timeout parameters. It configures the
// *http.Transport behind a Pool and the overall timeout of a Client.
//
// Start from DefaultConfig() or one of the presets and change what you need:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 5 * time.Second
//	cfg.MaxIdleConnsPerHost = 25
//
//	client := httpclient.New(httpclient.WithConfig(cfg))
type Config struct {
	// Timeout limits a single hop up to its response headers, and a
	// buffered call until its body is read. Streamed and downloaded
	// bodies are not bounded by it. Zero means no timeout.
	//
	// Default: 15s
	Timeout time.Duration

	// MaxIdleConns caps idle keep-alive connections across all hosts.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle keep-alive connections per host.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost caps total (idle + active) connections per host.
	// Zero means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout is the wait for "100 Continue" when the request
	// carries "Expect: 100-continue".
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers after the
	// request is written. Zero disables it.
	//
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds TCP connection establishment.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// FallbackDelay is the RFC 6555 dual-stack fallback delay.
	//
	// Default: 300ms
	FallbackDelay time.Duration

	// WriteBufferSize is the per-connection write buffer.
	//
	// Default: 64KB
	WriteBufferSize int

	// ReadBufferSize is the per-connection read buffer.
	//
	// Default: 64KB
	ReadBufferSize int

	// MaxResponseHeaderBytes limits response header size. Zero uses the
	// net/http default.
	MaxResponseHeaderBytes int64

	// DisableKeepAlives closes every connection after one request.
	DisableKeepAlives bool

	// DisableCompression stops the transport from requesting gzip.
	//
	// Default: true
	DisableCompression bool

	// ForceHTTP2 attempts HTTP/2 when a custom dialer is configured.
	ForceHTTP2 bool

	// ProxyFromEnvironment routes calls without an explicit proxy through
	// HTTP_PROXY / HTTPS_PROXY / NO_PROXY.
	//
	// Default: false
	ProxyFromEnvironment bool
}

// DefaultConfig returns balanced settings for general-purpose use.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DialTimeout:   5 * time.Second,
		KeepAlive:     30 * time.Second,
		FallbackDelay: 300 * time.Millisecond,

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,

		DisableCompression: true,
	}
}

// HighThroughputConfig returns settings for many concurrent calls to the
// same hosts: a larger pool, unlimited connections per host and larger
// buffers.
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Second
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 0
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.WriteBufferSize = 128 * 1024
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// LowLatencyConfig returns settings that fail fast.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.MaxIdleConns = 50
	cfg.MaxIdleConnsPerHost = 25
	cfg.MaxConnsPerHost = 50
	cfg.IdleConnTimeout = 60 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ExpectContinueTimeout = 500 * time.Millisecond
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.DialTimeout = 2 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.FallbackDelay = 150 * time.Millisecond
	cfg.WriteBufferSize = 32 * 1024
	cfg.ReadBufferSize = 32 * 1024
	cfg.ForceHTTP2 = true
	return cfg
}

// ConservativeConfig returns settings for memory-constrained processes.
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 5
	cfg.MaxConnsPerHost = 20
	cfg.IdleConnTimeout = 30 * time.Second
	cfg.WriteBufferSize = 4 * 1024
	cfg.ReadBufferSize = 4 * 1024
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds everything New needs to assemble a Client.
type internalConfig struct {
	httpConfig Config

	// Pool is the client's connection pool. Nil means the process-wide pool.
	Pool *Pool

	// Transport replaces pool routing entirely (tests, custom stacks).
	Transport http.RoundTripper

	BaseURL  string
	Defaults RequestConfig

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics

	// ServiceName is added as "http.client.name" on spans and metrics.
	ServiceName string

	EnableNetworkTrace bool

	Logger       zerolog.Logger
	Debug        bool
	GenerateCurl bool

	BreakerConfig *BreakerConfig
	RateLimit     *RateLimitConfig
	Coalesce      bool

	Interceptors *InterceptorChain
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:         DefaultConfig(),
		Defaults:           defaultRequestConfig(),
		TracerProvider:     otel.GetTracerProvider(),
		MeterProvider:      otel.GetMeterProvider(),
		EnableNetworkTrace: true,
		Logger:             zerolog.New(os.Stdout).With().Timestamp().Logger(),
		Interceptors:       NewInterceptorChain(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Metrics stay nil on registration failure; every recorder is nil-safe.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// Option configures the HTTP client.
type Option func(*internalConfig)

// WithConfig sets the timeout and, unless WithPool is also used, the
// configuration of a pool private to the client.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithConfig(httpclient.HighThroughputConfig()),
//	)
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
		if cfg.Pool == nil || cfg.Pool.name == "client" {
			cfg.Pool = NewPool("client", c)
		}
	}
}

// WithPool makes the client send through p instead of the process-wide
// pool. Several clients may share one pool.
func WithPool(p *Pool) Option {
	return func(cfg *internalConfig) {
		cfg.Pool = p
	}
}

// WithTransport replaces the client's pool routing with base. Agents and
// certificates are ignored for such clients because base owns connections.
func WithTransport(base http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = base
	}
}

// WithBaseURL resolves relative URIs passed to the verb methods against
// baseURL.
//
// Example:
//
//	client := httpclient.New(httpclient.WithBaseURL("https://api.example.com/v1/"))
//	resp, err := client.Request("ListUsers").Get(ctx, "users")
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithDefaultHeader adds a header sent on every call unless the call sets
// the same header.
func WithDefaultHeader(key, value string) Option {
	return func(cfg *internalConfig) {
		cfg.Defaults.Header.Set(key, value)
	}
}

// WithParse sets the client-wide default for response parsing.
func WithParse(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Defaults.Parse = enabled
	}
}

// WithStream sets the client-wide default for streaming responses.
func WithStream(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Defaults.Stream = enabled
	}
}

// WithFollowRedirects sets the client-wide default for redirect chasing.
func WithFollowRedirects(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Defaults.FollowRedirects = enabled
	}
}

// WithMaxRedirects sets the client-wide redirect ceiling.
func WithMaxRedirects(n int) Option {
	return func(cfg *internalConfig) {
		cfg.Defaults.MaxRedirects = n
	}
}

// WithDefaultProxy sends every call through proxyURI unless the call
// names its own proxy.
func WithDefaultProxy(proxyURI string) Option {
	return func(cfg *internalConfig) {
		cfg.Defaults.Proxy = proxyURI
	}
}

// WithServiceName sets an identifier for this client in traces and metrics.
// It is added as the "http.client.name" attribute and names the circuit
// breaker.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithDisableNetworkTrace turns off DNS/connect/TLS timing events.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.EnableNetworkTrace = false
	}
}

// WithLogger replaces the zerolog logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithDebug logs every hop, redirect and response at debug level.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithGenerateCurl records an equivalent cURL command on every Response.
func WithGenerateCurl(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.GenerateCurl = enabled
	}
}

// WithBreaker guards the client with a circuit breaker. Open-circuit
// rejections surface as gobreaker.ErrOpenState transport errors.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithServiceName("inventory"),
//	    httpclient.WithBreaker(httpclient.DefaultBreakerConfig()),
//	)
func WithBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &bc
	}
}

// WithRateLimit throttles the client's outgoing hops.
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &rl
	}
}

// WithCoalescing shares one in-flight exchange between identical buffered
// GET calls. Every caller gets its own *Response with its own Header; a
// decoded Body is shared and must be treated as read-only.
func WithCoalescing() Option {
	return func(cfg *internalConfig) {
		cfg.Coalesce = true
	}
}

// WithRequestInterceptor adds interceptors run on every outgoing hop.
func WithRequestInterceptor(interceptors ...RequestInterceptor) Option {
	return func(cfg *internalConfig) {
		for _, i := range interceptors {
			cfg.Interceptors.AddRequestInterceptor(i)
		}
	}
}

// WithResponseInterceptor adds interceptors run on every response hop,
// redirects included.
func WithResponseInterceptor(interceptors ...ResponseInterceptor) Option {
	return func(cfg *internalConfig) {
		for _, i := range interceptors {
			cfg.Interceptors.AddResponseInterceptor(i)
		}
	}
}

// resolveURI joins a relative uri onto base.
func resolveURI(base, uri string) string {
	if base == "" || strings.Contains(uri, "://") {
		return uri
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(uri, "/")
}

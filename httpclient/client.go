package httpclient

import (
	"context"
	"net/http"
)

// Client sends calls through a chain of transports: tracing and metrics,
// an optional circuit breaker, an optional rate limiter, then the
// connection pool selected for the call.
//
// A Client holds no per-call state and is safe for concurrent use.
//
// Create a Client using New():
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("payment-service"),
//	    httpclient.WithFollowRedirects(true),
//	)
//
//	resp, err := client.Request("CreatePayment").
//	    Body(payment).
//	    Post(ctx, "/payments")
type Client struct {
	httpClient *http.Client
	config     *internalConfig
	coalescer  *coalescer
}

// New creates a Client.
//
// Redirects are never followed by net/http; the client chases them
// itself according to the call configuration so every hop is traced,
// rate limited and counted.
//
// Example - dedicated pool with a breaker:
//
//	client := httpclient.New(
//	    httpclient.WithServiceName("inventory"),
//	    httpclient.WithConfig(httpclient.HighThroughputConfig()),
//	    httpclient.WithBreaker(httpclient.DefaultBreakerConfig()),
//	)
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	var base http.RoundTripper = poolRouter{}
	if cfg.Transport != nil {
		base = cfg.Transport
	}
	if cfg.RateLimit != nil {
		base = newRateLimitTransport(base, *cfg.RateLimit)
	}
	base = newCircuitBreakerTransport(base, cfg)

	c := &Client{
		httpClient: &http.Client{
			Transport: newOtelTransport(base, cfg),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: cfg,
	}
	if cfg.Coalesce {
		c.coalescer = &coalescer{}
	}
	return c
}

// HTTP returns an *http.Client sharing the client's transport chain.
// Requests sent through it are traced, rate limited and guarded like
// calls, but redirects are not followed, the process-wide pool is used
// and Config.Timeout covers the whole exchange including the body.
func (c *Client) HTTP() *http.Client {
	hc := *c.httpClient
	hc.Timeout = c.config.httpConfig.Timeout
	return &hc
}

// Pool returns the client's pool, or the process-wide pool when the
// client has none.
func (c *Client) Pool() *Pool {
	if c.config.Pool != nil {
		return c.config.Pool
	}
	return DefaultPool()
}

// Request creates a RequestBuilder for a call labelled operationName in
// spans and debug logs.
//
// Example:
//
//	resp, err := client.Request("GetUser").
//	    PathParam("id", userID).
//	    Get(ctx, "/users/{id}")
func (c *Client) Request(operationName string) *RequestBuilder {
	cfg := c.config.Defaults.clone()
	cfg.OperationName = operationName
	return &RequestBuilder{client: c, cfg: cfg}
}

// Get sends a GET call with the client defaults.
func (c *Client) Get(ctx context.Context, uri string) (*Response, error) {
	return c.Request("").Get(ctx, uri)
}

// Post sends body with a POST call.
func (c *Client) Post(ctx context.Context, uri string, body any) (*Response, error) {
	return c.Request("").Body(body).Post(ctx, uri)
}

// Put sends body with a PUT call.
func (c *Client) Put(ctx context.Context, uri string, body any) (*Response, error) {
	return c.Request("").Body(body).Put(ctx, uri)
}

// Patch sends body with a PATCH call.
func (c *Client) Patch(ctx context.Context, uri string, body any) (*Response, error) {
	return c.Request("").Body(body).Patch(ctx, uri)
}

// Delete sends a DELETE call.
func (c *Client) Delete(ctx context.Context, uri string) (*Response, error) {
	return c.Request("").Delete(ctx, uri)
}

// RateLimiterStats returns the token bucket serving host, if the client
// is rate limited.
func (c *Client) RateLimiterStats(host string) (RateLimiterStats, bool) {
	rl := findTransport[*rateLimitTransport](c.httpClient.Transport)
	if rl == nil {
		return RateLimiterStats{}, false
	}
	return rl.stats(host), true
}

// NewTransport wraps base with the client's tracing and metrics, for use
// in an http.Client built elsewhere.
//
// Example:
//
//	hc := &http.Client{
//	    Transport: httpclient.NewTransport(http.DefaultTransport,
//	        httpclient.WithServiceName("legacy-sdk"),
//	    ),
//	}
func NewTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := newConfig(opts...)
	return newOtelTransport(base, cfg)
}

// findTransport walks an Unwrap chain for a transport of type T.
func findTransport[T http.RoundTripper](rt http.RoundTripper) T {
	var zero T
	for rt != nil {
		if t, ok := rt.(T); ok {
			return t
		}
		u, ok := rt.(interface{ Unwrap() http.RoundTripper })
		if !ok {
			return zero
		}
		rt = u.Unwrap()
	}
	return zero
}

// Package httpclient is an HTTP/HTTPS client for GET, POST, PUT, PATCH and
// DELETE calls that turns a URI and a per-call configuration into one of
// four outcomes: a decoded body, raw text, a live stream, or a file on
// disk.
//
// # Features
//
//   - Per-call configuration merged over client defaults, field by field
//   - Response decoding by Content-Type with a JSON-first fallback
//   - Bounded redirect chasing handled by the client, one traced hop at a time
//   - Streaming responses and atomic file downloads
//   - File uploads and multipart forms
//   - Named connection pools ("agents"), client certificates and proxies
//   - OpenTelemetry tracing and metrics, Prometheus pool collector
//   - Optional circuit breaker (local or Redis-backed), rate limiting and
//     coalescing of identical GETs
//
// # Quick Start
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("my-service"),
//	)
//
//	// GET: Body holds the decoded JSON
//	resp, err := client.Request("GetUsers").Get(ctx, "/users")
//
//	// POST: structured values are sent as JSON
//	resp, err := client.Request("CreateUser").
//	    Body(map[string]any{"name": "ada"}).
//	    Post(ctx, "/users")
//
// # Errors and statuses
//
// A call returns an error only when no response was obtained: a bad
// configuration (ErrUnsupportedMethod, ErrInvalidURL,
// ErrCertificateConflict, ErrCertificateProxy), a hop that exceeded
// Config.Timeout (*HopTimeoutError), or a transport failure, which is
// returned as the transport reported it. Every HTTP status, including 4xx, 5xx and an
// unfollowed 3xx, is a successful call:
//
//	resp, err := client.Request("GetUser").Get(ctx, "/users/1")
//	if err != nil {
//	    return err
//	}
//	if resp.IsError() {
//	    return fmt.Errorf("HTTP %d", resp.StatusCode)
//	}
//
// A payload declared as application/json that does not parse is returned
// as the MalformedJSON string in Response.Body, not as an error.
//
// # Redirects
//
// Redirects are off by default. When enabled, a 3xx with a Location
// header is re-sent with the same method, headers and body, up to
// MaxRedirects times. DELETE calls and calls with a reader payload never
// follow redirects:
//
//	resp, err := client.Request("Resolve").
//	    FollowRedirects(true).
//	    MaxRedirects(5).
//	    Get(ctx, "https://short.example/abc")
//	fmt.Println(resp.Redirects, resp.URL)
//
// # Delivery
//
// Stream wins over Download, which wins over buffering:
//
//	// live body, caller closes
//	resp, _ := client.Request("Export").Stream(true).Get(ctx, uri)
//	defer resp.Raw.Body.Close()
//
//	// written to /data/<name>, Body is nil
//	resp, _ = client.Request("Fetch").Download("/data").Get(ctx, uri)
//
// # Asynchronous calls
//
// Go returns a handle to await; Then invokes a callback. Both run the
// same dispatch as the blocking verbs:
//
//	call := client.Request("Slow").Go(ctx, uri)
//	// ...
//	resp, err := call.Await(ctx)
//
// # Connection pools
//
// Clients share the process-wide pool unless given their own. The
// process-wide pool is replaced only through SetDefaultPool or
// ConfigureDefaultPool; calls in flight keep the pool they started with.
//
//	pool := httpclient.NewPool("payments", httpclient.HighThroughputConfig())
//	client := httpclient.New(httpclient.WithPool(pool))
//
//	// per call
//	client.Request("OneOff").NoAgent().Get(ctx, uri)
//	client.Request("Tuned").Agent(httpclient.AgentConfig(cfg)).Get(ctx, uri)
//
// # Observability
//
// Each call opens a span named after its operation; each hop is a child
// client span with network timing events. Metrics cover hop latency,
// call latency, redirects, body sizes, downloads and breaker results.
// Debug logging uses zerolog:
//
//	client := httpclient.New(
//	    httpclient.WithLogger(log.Logger),
//	    httpclient.WithDebug(true),
//	    httpclient.WithGenerateCurl(true),
//	)
//
// # Testing
//
// MockTransport stubs responses per path without a network:
//
//	mock := httpclient.NewMockTransport().
//	    StubJSON("/users/1", http.StatusOK, `{"id":1}`)
//	client := httpclient.New(httpclient.WithMockTransport(mock))
package httpclient

package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// RequestBuilder builds one call. It starts from the client defaults and
// each setter overrides a single field, so unset fields keep the client
// value.
//
// Create a RequestBuilder using Client.Request():
//
//	resp, err := client.Request("CreateUser").
//	    Header("Idempotency-Key", key).
//	    Body(user).
//	    Post(ctx, "https://api.example.com/users")
//
// A builder may be sent more than once; every send works on a fresh copy
// of its configuration.
type RequestBuilder struct {
	client     *Client
	cfg        *RequestConfig
	query      url.Values
	pathParams map[string]string
	multipart  *multipartForm
}

// Method sets the method used by Send, Go and Then.
func (rb *RequestBuilder) Method(method string) *RequestBuilder {
	rb.cfg.Method = method
	return rb
}

// Header sets a request header, replacing a client default of the same
// name.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.cfg.Header.Set(key, value)
	return rb
}

// Headers sets several request headers.
//
// Example:
//
//	client.Request("CreateUser").
//	    Headers(map[string]string{
//	        "Authorization":   "Bearer " + token,
//	        "Idempotency-Key": key,
//	    }).
//	    Post(ctx, "/users")
func (rb *RequestBuilder) Headers(headers map[string]string) *RequestBuilder {
	for k, v := range headers {
		rb.cfg.Header.Set(k, v)
	}
	return rb
}

// Body sets the payload. The variant is chosen once, here:
//
//   - string: sent as text, with Content-Length inferred
//   - []byte: sent as binary
//   - io.Reader: streamed until EOF; the call will not follow redirects
//   - Body: used as-is
//   - anything else: JSON-encoded into text
//
// Payload verbs without a Content-Type header are sent as
// "application/json". An encoding failure is returned when the call is
// sent, before any I/O.
func (rb *RequestBuilder) Body(v any) *RequestBuilder {
	rb.cfg.Body, rb.cfg.bodyErr = NewBody(v)
	return rb
}

// Parse toggles decoding of the response body by content type. When
// disabled, Response.Body holds the raw text.
func (rb *RequestBuilder) Parse(enabled bool) *RequestBuilder {
	rb.cfg.Parse = enabled
	return rb
}

// Stream hands back the live response instead of buffering it. The caller
// must close Response.Raw.Body.
//
// Example:
//
//	resp, err := client.Request("ExportEvents").Stream(true).Get(ctx, uri)
//	if err != nil {
//	    return err
//	}
//	defer resp.Raw.Body.Close()
//	_, err = io.Copy(dst, resp.Raw.Body)
func (rb *RequestBuilder) Stream(enabled bool) *RequestBuilder {
	rb.cfg.Stream = enabled
	return rb
}

// FollowRedirects toggles redirect chasing for 3xx responses carrying a
// Location header. DELETE calls never follow redirects.
func (rb *RequestBuilder) FollowRedirects(enabled bool) *RequestBuilder {
	rb.cfg.FollowRedirects = enabled
	return rb
}

// MaxRedirects bounds the redirect chain. Once reached, the 3xx response
// itself is returned.
func (rb *RequestBuilder) MaxRedirects(n int) *RequestBuilder {
	rb.cfg.MaxRedirects = n
	return rb
}

// Download writes the body of a GET call into dir instead of buffering
// it. The file name comes from Filename, the Content-Disposition header
// or the URI path, in that order.
//
// Example:
//
//	resp, err := client.Request("FetchInvoice").
//	    Download("/var/invoices").
//	    Get(ctx, "https://billing.example.com/invoices/2024-01.pdf")
//	// resp.File == "/var/invoices/2024-01.pdf"
func (rb *RequestBuilder) Download(dir string) *RequestBuilder {
	rb.cfg.Path = dir
	return rb
}

// Upload streams the file at path as the payload of a POST or PUT call
// that has no Body. The file is reopened for every hop.
func (rb *RequestBuilder) Upload(path string) *RequestBuilder {
	rb.cfg.Path = path
	return rb
}

// Filename overrides the name of a downloaded file.
func (rb *RequestBuilder) Filename(name string) *RequestBuilder {
	rb.cfg.Filename = name
	return rb
}

// Agent selects the connection pool for the call.
func (rb *RequestBuilder) Agent(agent Agent) *RequestBuilder {
	rb.cfg.Agent = agent
	return rb
}

// NoAgent disables connection reuse for the call.
func (rb *RequestBuilder) NoAgent() *RequestBuilder {
	rb.cfg.Agent = AgentNone()
	return rb
}

// Certificate sets client TLS material for https targets.
func (rb *RequestBuilder) Certificate(cert *Certificate) *RequestBuilder {
	rb.cfg.Certificate = cert
	return rb
}

// Proxy sends the call through proxyURI. The request is addressed to the
// proxy with the full target URI as request target.
//
// Example:
//
//	resp, err := client.Request("Fetch").
//	    Proxy("http://proxy.internal:8080").
//	    Get(ctx, "https://example.com/data")
func (rb *RequestBuilder) Proxy(proxyURI string) *RequestBuilder {
	rb.cfg.Proxy = proxyURI
	return rb
}

// Query adds a query parameter to the URI.
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	if rb.query == nil {
		rb.query = make(url.Values)
	}
	rb.query.Add(key, value)
	return rb
}

// PathParam replaces "{key}" in the URI with the escaped value.
//
// Example:
//
//	client.Request("GetUser").
//	    PathParam("id", userID).
//	    Get(ctx, "/users/{id}")
func (rb *RequestBuilder) PathParam(key, value string) *RequestBuilder {
	if rb.pathParams == nil {
		rb.pathParams = make(map[string]string)
	}
	rb.pathParams[key] = value
	return rb
}

// Send performs the call with the configured method (GET by default) and
// blocks until the response is delivered.
//
// The error is non-nil only when no response was obtained: invalid
// configuration, an unusable URI, or a transport failure. HTTP error
// statuses are returned in the Response.
func (rb *RequestBuilder) Send(ctx context.Context, uri string) (*Response, error) {
	cfg, target, err := rb.prepare(uri)
	if err != nil {
		return nil, err
	}
	return rb.client.dispatch(ctx, target, cfg)
}

// Get sends a GET call.
//
// Example:
//
//	resp, err := client.Request("GetUsers").Get(ctx, "https://api.example.com/users")
func (rb *RequestBuilder) Get(ctx context.Context, uri string) (*Response, error) {
	return rb.Method(http.MethodGet).Send(ctx, uri)
}

// Post sends a POST call.
func (rb *RequestBuilder) Post(ctx context.Context, uri string) (*Response, error) {
	return rb.Method(http.MethodPost).Send(ctx, uri)
}

// Put sends a PUT call.
func (rb *RequestBuilder) Put(ctx context.Context, uri string) (*Response, error) {
	return rb.Method(http.MethodPut).Send(ctx, uri)
}

// Patch sends a PATCH call.
func (rb *RequestBuilder) Patch(ctx context.Context, uri string) (*Response, error) {
	return rb.Method(http.MethodPatch).Send(ctx, uri)
}

// Delete sends a DELETE call.
func (rb *RequestBuilder) Delete(ctx context.Context, uri string) (*Response, error) {
	return rb.Method(http.MethodDelete).Send(ctx, uri)
}

// Go starts the call in the background and returns a handle to await it.
//
// Example:
//
//	users := client.Request("ListUsers").Go(ctx, usersURI)
//	orders := client.Request("ListOrders").Go(ctx, ordersURI)
//
//	u, err := users.Await(ctx)
//	...
//	o, err := orders.Await(ctx)
func (rb *RequestBuilder) Go(ctx context.Context, uri string) *Call {
	c := newCall()
	cfg, target, err := rb.prepare(uri)
	if err != nil {
		c.complete(nil, err)
		return c
	}
	go func() {
		c.complete(rb.client.dispatch(ctx, target, cfg))
	}()
	return c
}

// Then starts the call in the background and invokes cb exactly once
// with its outcome. cb runs on a goroutine owned by the call.
//
// Example:
//
//	client.Request("Ping").Then(ctx, pingURI, func(resp *httpclient.Response, err error) {
//	    if err != nil {
//	        log.Error().Err(err).Msg("ping failed")
//	        return
//	    }
//	    log.Info().Int("status", resp.StatusCode).Msg("ping")
//	})
func (rb *RequestBuilder) Then(ctx context.Context, uri string, cb func(*Response, error)) {
	cfg, target, err := rb.prepare(uri)
	if err != nil {
		go cb(nil, err)
		return
	}
	go func() {
		cb(rb.client.dispatch(ctx, target, cfg))
	}()
}

// prepare snapshots the builder into a fresh RequestConfig and expands
// the URI.
func (rb *RequestBuilder) prepare(uri string) (*RequestConfig, string, error) {
	cfg := rb.cfg.clone()

	if !rb.multipart.empty() && cfg.Body.IsEmpty() {
		body, contentType, err := rb.multipart.encode()
		if err != nil {
			return nil, "", err
		}
		cfg.Body = body
		if cfg.Header.Get("Content-Type") == "" {
			cfg.Header.Set("Content-Type", contentType)
		}
	}

	for k, v := range rb.pathParams {
		uri = strings.ReplaceAll(uri, "{"+k+"}", url.PathEscape(v))
	}

	if len(rb.query) > 0 {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		uri += sep + rb.query.Encode()
	}

	return cfg, uri, nil
}

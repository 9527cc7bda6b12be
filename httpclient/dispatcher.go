package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Delivery modes of a call, in the order they are considered.
const (
	deliveryStream   = "stream"
	deliveryFile     = "file"
	deliveryBuffered = "buffered"
)

// call is the state of one logical call: its configuration, the payload
// fixed at normalization time, the pool serving it and the redirect
// counter. It lives on the dispatching goroutine only.
type call struct {
	cfg     *RequestConfig
	body    Body
	pool    *Pool
	private bool

	target    *url.URL
	redirects int
	curl      string

	// deadline bounds the current hop.
	deadline *hopDeadline

	span  trace.Span
	start time.Time
}

// dispatch validates cfg, resolves uri and runs the call, sharing the
// exchange with identical in-flight calls when coalescing is enabled.
func (c *Client) dispatch(ctx context.Context, uri string, cfg *RequestConfig) (*Response, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	target, err := parseTarget(resolveURI(c.config.BaseURL, uri))
	if err != nil {
		return nil, err
	}

	if c.coalescer.eligible(cfg) {
		resp, _, err := c.coalescer.do(ctx, coalesceKey(target, cfg), func(ctx context.Context) (*Response, error) {
			return c.run(ctx, target, cfg)
		})
		return resp, err
	}
	return c.run(ctx, target, cfg)
}

// run drives the call state machine: send a hop, follow it if it is a
// redirect that may be followed, otherwise deliver the response.
func (c *Client) run(ctx context.Context, target *url.URL, cfg *RequestConfig) (*Response, error) {
	cl := &call{
		cfg:    cfg,
		body:   cfg.payload(),
		target: target,
		start:  time.Now(),
	}

	ctx, cl.span = c.config.Tracer.Start(ctx, spanName(cfg),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(c.callAttributes(cl)...),
	)

	if c.config.Transport == nil {
		cl.pool, cl.private = cfg.Agent.resolve(c.config.Pool)
	}

	resp, err := c.loop(ctx, cl)
	if err != nil {
		setSpanError(cl.span, err, classifyError(err))
		cl.finish()
		return nil, err
	}
	// A streamed body ends the span when the caller closes it.
	if resp.Raw == nil {
		cl.finish()
	}
	return resp, nil
}

func (c *Client) loop(ctx context.Context, cl *call) (*Response, error) {
	for {
		resp, err := c.hop(ctx, cl)
		if err != nil {
			return nil, err
		}

		next, ok := c.redirectTarget(cl, resp)
		if !ok {
			return c.deliver(ctx, cl, resp)
		}

		// Free the connection before the next hop.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		cl.deadline.release()

		cl.redirects++
		c.config.Metrics.recordRedirect(ctx, resp.StatusCode, c.config.baseAttributes())
		cl.span.AddEvent("redirect", trace.WithAttributes(
			attribute.Int("http.response.status_code", resp.StatusCode),
			attribute.String("url.full", next.String()),
		))
		if c.config.Debug {
			logRedirect(c.config.Logger, cl.cfg.OperationName, resp.StatusCode, cl.target.String(), next.String(), cl.redirects)
		}
		cl.target = next
	}
}

// hop sends one request of the call and returns the response headers
// with the body unread. The body stays under cl.deadline until deliver
// or the redirect loop releases it.
func (c *Client) hop(ctx context.Context, cl *call) (*http.Response, error) {
	params, err := BuildParams(cl.target, cl.cfg)
	if err != nil {
		return nil, err
	}

	if cl.pool != nil {
		transport := cl.pool.transport
		if params.Scheme == "https" {
			if transport, err = cl.pool.forCertificate(params.Certificate); err != nil {
				return nil, err
			}
		}
		ctx = context.WithValue(ctx, routeKey{}, route{pool: cl.pool, transport: transport})
	}
	ctx = withHop(ctx, cl.redirects)
	ctx, deadline := newHopDeadline(ctx, c.config.httpConfig.Timeout)

	var payload io.Reader
	size := int64(-1)
	if !cl.body.IsEmpty() {
		if payload, size, err = cl.body.open(); err != nil {
			deadline.release()
			return nil, err
		}
		if size == 0 {
			closeReader(payload)
			payload = http.NoBody
		}
	}

	req, err := params.NewRequest(ctx, payload)
	if err != nil {
		closeReader(payload)
		deadline.release()
		return nil, err
	}
	if size > 0 && req.ContentLength == 0 {
		req.ContentLength = size
	}

	if err := c.config.Interceptors.ApplyRequestInterceptors(req); err != nil {
		closeReader(payload)
		deadline.release()
		return nil, err
	}

	if c.config.GenerateCurl {
		cl.curl = generateCurlCommand(req, cl.body)
	}
	if c.config.Debug {
		logHop(c.config.Logger, cl.cfg.OperationName, req, cl.redirects)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors reach the caller as the transport reported them.
		if ue, ok := err.(*url.Error); ok {
			err = ue.Err
		}
		deadline.release()
		return nil, deadline.wrap(err)
	}

	if c.config.Debug {
		logResponse(c.config.Logger, cl.cfg.OperationName, resp, time.Since(start))
	}

	if err := c.config.Interceptors.ApplyResponseInterceptors(resp, req); err != nil {
		_ = resp.Body.Close()
		deadline.release()
		return nil, err
	}
	cl.deadline = deadline
	return resp, nil
}

// redirectTarget returns the location to follow, if the response is a
// redirect the call is allowed to follow.
func (c *Client) redirectTarget(cl *call, resp *http.Response) (*url.URL, bool) {
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return nil, false
	}
	if !cl.cfg.FollowRedirects ||
		cl.cfg.Method == http.MethodDelete ||
		cl.redirects >= cl.cfg.MaxRedirects {
		return nil, false
	}
	// A reader payload was consumed by the first hop.
	if !cl.body.replayable() {
		return nil, false
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, false
	}
	next, err := cl.target.Parse(location)
	if err != nil || (next.Scheme != "http" && next.Scheme != "https") || next.Host == "" {
		return nil, false
	}
	return next, true
}

// deliver routes the final response to its delivery mode.
func (c *Client) deliver(ctx context.Context, cl *call, resp *http.Response) (*Response, error) {
	out := &Response{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Redirects:   cl.redirects,
		URL:         cl.target.String(),
		curlCommand: cl.curl,
	}
	cl.span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("http.client.redirects", cl.redirects),
	)

	// Streamed and downloaded bodies are read past the hop timeout.
	if (cl.cfg.Stream || cl.cfg.downloads()) && !cl.deadline.lift() {
		_ = resp.Body.Close()
		cl.deadline.release()
		return nil, cl.deadline.wrap(context.DeadlineExceeded)
	}

	switch {
	case cl.cfg.Stream:
		cl.span.SetAttributes(attribute.String("http.client.delivery", deliveryStream))
		attrs := c.config.baseAttributes()
		transferStart := time.Now()
		resp.Body = newSpanBody(cl.span, resp.Body, func(n int64) {
			c.config.Metrics.recordResponseBodySize(ctx, n, attrs)
			c.config.Metrics.recordContentTransfer(ctx, time.Since(transferStart), attrs)
			c.config.Metrics.recordCall(ctx, time.Since(cl.start), deliveryStream, cl.redirects, attrs)
			cl.deadline.release()
			if cl.private {
				cl.pool.CloseIdleConnections()
			}
		})
		out.Raw = resp
		return out, nil

	case cl.cfg.downloads():
		defer cl.deadline.release()
		defer resp.Body.Close()
		cl.span.SetAttributes(attribute.String("http.client.delivery", deliveryFile))

		file := ResolveFilename(resp.Header, cl.cfg.Path, cl.target.EscapedPath(), cl.cfg.Filename)
		transferStart := time.Now()
		n, err := writeFile(ctx, c.config.Logger, resp.Body, resp.ContentLength, file)
		if err != nil {
			return nil, err
		}

		attrs := c.config.baseAttributes()
		c.config.Metrics.recordContentTransfer(ctx, time.Since(transferStart), attrs)
		c.config.Metrics.recordDownloadSize(ctx, n, attrs)
		c.config.Metrics.recordCall(ctx, time.Since(cl.start), deliveryFile, cl.redirects, attrs)
		cl.span.SetAttributes(attribute.String("http.client.file", file))
		if c.config.Debug {
			logDownload(c.config.Logger, cl.cfg.OperationName, file, n)
		}

		out.File = file
		return out, nil

	default:
		cl.span.SetAttributes(attribute.String("http.client.delivery", deliveryBuffered))

		transferStart := time.Now()
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		cl.deadline.release()
		if err != nil {
			return nil, cl.deadline.wrap(err)
		}

		attrs := c.config.baseAttributes()
		c.config.Metrics.recordContentTransfer(ctx, time.Since(transferStart), attrs)
		c.config.Metrics.recordCall(ctx, time.Since(cl.start), deliveryBuffered, cl.redirects, attrs)

		out.raw = data
		switch {
		case len(data) == 0:
			out.Body = nil
		case cl.cfg.Parse:
			out.Body = DecodeBody(resp.Header, data)
		default:
			out.Body = string(data)
		}
		return out, nil
	}
}

// finish ends the call span and releases a private pool.
func (cl *call) finish() {
	if cl.private {
		cl.pool.CloseIdleConnections()
	}
	cl.span.End()
}

func spanName(cfg *RequestConfig) string {
	if cfg.OperationName != "" {
		return cfg.OperationName
	}
	return "HTTP " + cfg.Method
}

func (c *Client) callAttributes(cl *call) []attribute.KeyValue {
	attrs := append(c.config.baseAttributes(),
		attribute.String("http.request.method", cl.cfg.Method),
		attribute.String("url.full", cl.target.String()),
		attribute.Bool("http.client.follow_redirects", cl.cfg.FollowRedirects),
		attribute.String("http.client.body", cl.body.Kind().String()),
	)
	if cl.cfg.OperationName != "" {
		attrs = append(attrs, attribute.String("http.client.operation", cl.cfg.OperationName))
	}
	if cl.cfg.Proxy != "" {
		attrs = append(attrs, attribute.Bool("http.client.proxied", true))
	}
	return attrs
}

func closeReader(r io.Reader) {
	if rc, ok := r.(io.Closer); ok {
		_ = rc.Close()
	}
}

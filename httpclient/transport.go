package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var _ http.RoundTripper = (*otelTransport)(nil)

// otelTransport traces and measures every hop. It is the outermost
// transport of a client, so breaker rejections and rate limiting show up
// on hop spans too.
type otelTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	propagator propagation.TextMapPropagator
}

func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	return &otelTransport{
		base: base,
		cfg:  cfg,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

type hopKey struct{}

// withHop records the position of a hop in its redirect chain.
func withHop(ctx context.Context, hop int) context.Context {
	return context.WithValue(ctx, hopKey{}, hop)
}

// RoundTrip implements http.RoundTripper.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, span := t.cfg.Tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)
	defer span.End()

	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	base := t.cfg.baseAttributes()
	t.cfg.Metrics.recordActiveRequestStart(ctx, base)
	defer t.cfg.Metrics.recordActiveRequestEnd(ctx, base)

	if req.ContentLength > 0 {
		t.cfg.Metrics.recordRequestBodySize(ctx, req.ContentLength, base)
	}

	var nt *networkTrace
	if t.cfg.EnableNetworkTrace {
		nt = &networkTrace{}
		ctx = httptrace.WithClientTrace(ctx, nt.clientTrace())
	}

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	duration := time.Since(start)

	if nt != nil {
		nt.addTraceEvents(span)
		nt.recordTimingMetrics(ctx, t.cfg.Metrics, base)
	}

	if err != nil {
		errorType := classifyError(err)
		setSpanError(span, err, errorType)
		t.cfg.Metrics.recordError(ctx, errorType, base)
		t.cfg.Metrics.recordRequestDuration(ctx, duration,
			withAttr(t.metricAttributes(req), attribute.String("error.type", errorType)))
		return nil, err
	}

	span.SetAttributes(responseAttributes(resp)...)
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		span.SetAttributes(attribute.String("error.type", errorTypeFromStatusCode(resp.StatusCode)))
	}

	if resp.ContentLength > 0 {
		t.cfg.Metrics.recordResponseBodySize(ctx, resp.ContentLength, base)
	}

	attrs := withAttr(t.metricAttributes(req), attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		attrs = append(attrs, attribute.String("error.type", errorTypeFromStatusCode(resp.StatusCode)))
	}
	t.cfg.Metrics.recordRequestDuration(ctx, duration, attrs)

	return resp, nil
}

// Unwrap returns the next transport in the chain.
func (t *otelTransport) Unwrap() http.RoundTripper {
	return t.base
}

// hopTarget returns the absolute URI a hop addresses. Proxied hops carry
// it in URL.Opaque.
func hopTarget(req *http.Request) string {
	if strings.Contains(req.URL.Opaque, "://") {
		return req.URL.Opaque
	}
	return req.URL.String()
}

func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := t.metricAttributes(req)
	attrs = append(attrs, attribute.String("url.full", hopTarget(req)))

	if hop, ok := req.Context().Value(hopKey{}).(int); ok {
		attrs = append(attrs, attribute.Int("http.request.resend_count", hop))
	}
	if strings.Contains(req.URL.Opaque, "://") {
		attrs = append(attrs, attribute.String("http.client.proxy", req.URL.Host))
	}
	if req.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.request.body.size", req.ContentLength))
	}
	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	return attrs
}

// metricAttributes returns the low-cardinality attributes of a hop.
func (t *otelTransport) metricAttributes(req *http.Request) []attribute.KeyValue {
	attrs := append(t.cfg.baseAttributes(), attribute.String("http.request.method", req.Method))

	scheme, host := req.URL.Scheme, req.URL.Host
	if req.Host != "" {
		host = req.Host
	}
	if u, err := parseTarget(hopTarget(req)); err == nil {
		scheme, host = u.Scheme, u.Host
	}

	hostname, port := splitHostPort(host, scheme)
	if hostname != "" {
		attrs = append(attrs, attribute.String("server.address", hostname))
	}
	attrs = append(attrs,
		attribute.Int("server.port", port),
		attribute.String("url.scheme", scheme),
	)
	return attrs
}

func responseAttributes(resp *http.Response) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int("http.response.status_code", resp.StatusCode)}

	if resp.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.response.body.size", resp.ContentLength))
	}
	if resp.Proto != "" {
		version := strings.TrimPrefix(resp.Proto, "HTTP/")
		if version == "2.0" {
			version = "2"
		}
		attrs = append(attrs, attribute.String("network.protocol.version", version))
	}
	return attrs
}

// splitHostPort splits an authority, defaulting the port from scheme.
func splitHostPort(authority, scheme string) (string, int) {
	host, portStr := authority, ""
	if i := strings.LastIndexByte(authority, ':'); i >= 0 && !strings.HasSuffix(authority, "]") {
		host, portStr = authority[:i], authority[i+1:]
	}
	host = strings.Trim(host, "[]")
	if p, err := strconv.Atoi(portStr); err == nil {
		return host, p
	}
	return host, defaultPort(scheme)
}

package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http/httptrace"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Values of the error.type attribute for transport failures.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeEOF               = "eof"
	ErrorTypeCircuitOpen       = "circuit_open"
	ErrorTypeRateLimited       = "rate_limited"
	ErrorTypeUnknown           = "unknown"
)

// phase is a timed section of a hop.
type phase struct {
	start, done time.Time
}

func (p phase) complete() bool {
	return !p.start.IsZero() && !p.done.IsZero()
}

func (p phase) duration() time.Duration {
	return p.done.Sub(p.start)
}

// networkTrace collects connection timings of one hop.
type networkTrace struct {
	dns     phase
	connect phase
	tls     phase

	gotConn    time.Time
	wrote      time.Time
	firstByte  time.Time
	reused     bool
	wasIdle    bool
	remoteAddr string
	alpn       string
	dnsAddrs   []string
}

func (nt *networkTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			nt.gotConn = time.Now()
			nt.reused = info.Reused
			nt.wasIdle = info.WasIdle
			if info.Conn != nil && info.Conn.RemoteAddr() != nil {
				nt.remoteAddr = info.Conn.RemoteAddr().String()
			}
		},
		DNSStart: func(httptrace.DNSStartInfo) { nt.dns.start = time.Now() },
		DNSDone: func(info httptrace.DNSDoneInfo) {
			nt.dns.done = time.Now()
			for _, a := range info.Addrs {
				nt.dnsAddrs = append(nt.dnsAddrs, a.String())
			}
		},
		ConnectStart:      func(_, _ string) { nt.connect.start = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { nt.connect.done = time.Now() },
		TLSHandshakeStart: func() { nt.tls.start = time.Now() },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			nt.tls.done = time.Now()
			nt.alpn = state.NegotiatedProtocol
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { nt.wrote = time.Now() },
		GotFirstResponseByte: func() { nt.firstByte = time.Now() },
	}
}

// addTraceEvents adds one span event per completed phase.
func (nt *networkTrace) addTraceEvents(span trace.Span) {
	if nt.dns.complete() {
		span.AddEvent("dns.done", trace.WithTimestamp(nt.dns.done), trace.WithAttributes(
			attribute.Int64("dns.duration_ms", nt.dns.duration().Milliseconds()),
			attribute.StringSlice("dns.addresses", nt.dnsAddrs),
		))
	}
	if nt.connect.complete() {
		span.AddEvent("connect.done", trace.WithTimestamp(nt.connect.done), trace.WithAttributes(
			attribute.Int64("connect.duration_ms", nt.connect.duration().Milliseconds()),
		))
	}
	if nt.tls.complete() {
		span.AddEvent("tls.done", trace.WithTimestamp(nt.tls.done), trace.WithAttributes(
			attribute.Int64("tls.duration_ms", nt.tls.duration().Milliseconds()),
			attribute.String("tls.protocol", nt.alpn),
		))
	}
	if !nt.gotConn.IsZero() {
		span.AddEvent("got_conn", trace.WithTimestamp(nt.gotConn), trace.WithAttributes(
			attribute.Bool("connection.reused", nt.reused),
			attribute.Bool("connection.was_idle", nt.wasIdle),
			attribute.String("network.peer.address", nt.remoteAddr),
		))
	}
	if !nt.firstByte.IsZero() && !nt.wrote.IsZero() {
		span.AddEvent("got_first_response_byte", trace.WithTimestamp(nt.firstByte), trace.WithAttributes(
			attribute.Int64("ttfb_ms", nt.firstByte.Sub(nt.wrote).Milliseconds()),
		))
	}
}

func (nt *networkTrace) recordTimingMetrics(ctx context.Context, m *metrics, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	if !nt.reused && !nt.connect.start.IsZero() {
		m.recordConnectionOpened(ctx, attrs)
	}
	if nt.dns.complete() {
		m.recordDNSDuration(ctx, nt.dns.duration(), attrs)
	}
	if nt.connect.complete() {
		m.recordConnectionDuration(ctx, nt.connect.duration(), attrs)
	}
	if nt.tls.complete() {
		m.recordTLSDuration(ctx, nt.tls.duration(), attrs)
	}
	if !nt.firstByte.IsZero() && !nt.wrote.IsZero() {
		m.recordTTFB(ctx, nt.firstByte.Sub(nt.wrote), attrs)
	}
}

// classifyError maps a transport error to an error.type value.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, ErrRateLimited):
		return ErrorTypeRateLimited
	case isBreakerRejection(err):
		return ErrorTypeCircuitOpen
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNSError
	}
	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) {
		return ErrorTypeTLSError
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ErrorTypeConnectionReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorTypeEOF
	}

	// Some errors only carry their cause in the message.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "connection refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(msg, "connection reset"):
		return ErrorTypeConnectionReset
	case strings.Contains(msg, "no such host"):
		return ErrorTypeDNSError
	case strings.Contains(msg, "tls"), strings.Contains(msg, "x509"), strings.Contains(msg, "certificate"):
		return ErrorTypeTLSError
	}
	return ErrorTypeUnknown
}

// errorTypeFromStatusCode returns the status code as error.type for 4xx
// and 5xx responses.
func errorTypeFromStatusCode(statusCode int) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return ""
}

func setSpanError(span trace.Span, err error, errorType string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		span.SetAttributes(attribute.String("error.type", errorType))
	}
}

package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ConnectionParams are the transport-ready parameters of one hop.
type ConnectionParams struct {
	// Scheme is the scheme used to connect ("http" or "https"). When a
	// proxy is configured this is the proxy's scheme.
	Scheme string

	// Host and Port address the server the connection is opened to.
	Host string
	Port int

	// Path is the request target: path plus query, or the full target URI
	// when sent through a proxy.
	Path string

	Method string

	// Header is nil when no headers are set.
	Header http.Header

	// Certificate is set only for https targets.
	Certificate *Certificate
}

// BuildParams turns a parsed target URI and a call configuration into
// connection parameters.
//
// For POST, PUT and PATCH calls with a payload it adds
// "Content-Type: application/json" when no Content-Type is set, and for
// text payloads a Content-Length with the byte length when none is set.
func BuildParams(target *url.URL, cfg *RequestConfig) (*ConnectionParams, error) {
	if target == nil || target.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	port, err := portOf(target)
	if err != nil {
		return nil, err
	}

	params := &ConnectionParams{
		Scheme: target.Scheme,
		Host:   target.Hostname(),
		Port:   port,
		Path:   requestTarget(target),
		Method: cfg.Method,
	}

	header := cfg.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	body := cfg.payload()
	if carriesPayload(cfg.Method) && !body.IsEmpty() {
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
		if body.Kind() == BodyText && header.Get("Content-Length") == "" {
			header.Set("Content-Length", strconv.Itoa(len(body.Text())))
		}
	}

	if cfg.Proxy != "" {
		proxy, err := url.Parse(cfg.Proxy)
		if err != nil || proxy.Host == "" {
			return nil, fmt.Errorf("%w: proxy %q", ErrInvalidURL, cfg.Proxy)
		}
		if target.Scheme == "https" && cfg.Certificate != nil && proxy.Scheme != "https" {
			return nil, ErrCertificateProxy
		}
		proxyPort, err := portOf(proxy)
		if err != nil {
			return nil, err
		}
		params.Scheme = proxy.Scheme
		params.Host = proxy.Hostname()
		params.Port = proxyPort
		params.Path = target.String()
		header.Set("Host", target.Scheme+"://"+target.Host)
	}

	if target.Scheme == "https" && cfg.Certificate != nil {
		params.Certificate = cfg.Certificate
	}

	if len(header) > 0 {
		params.Header = header
	}

	return params, nil
}

// NewRequest materializes the parameters into an *http.Request carrying body.
func (p *ConnectionParams) NewRequest(ctx context.Context, body io.Reader) (*http.Request, error) {
	addr := p.Host
	if p.Port != defaultPort(p.Scheme) {
		addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	} else if strings.Contains(addr, ":") {
		addr = "[" + addr + "]"
	}

	origin := p.Scheme + "://" + addr
	proxied := strings.Contains(p.Path, "://")

	var req *http.Request
	var err error
	if proxied {
		req, err = http.NewRequestWithContext(ctx, p.Method, origin, body)
		if err != nil {
			return nil, err
		}
		// Absolute-form request target, written verbatim on the request line.
		req.URL.Opaque = p.Path
	} else {
		req, err = http.NewRequestWithContext(ctx, p.Method, origin+p.Path, body)
		if err != nil {
			return nil, err
		}
	}

	for k, v := range p.Header {
		req.Header[k] = append([]string(nil), v...)
	}

	// net/http writes Host and Content-Length from request fields.
	if host := req.Header.Get("Host"); host != "" {
		req.Header.Del("Host")
		if hu, err := url.Parse(host); err == nil && hu.Host != "" {
			req.Host = hu.Host
		} else {
			req.Host = host
		}
	}
	if cl := req.Header.Get("Content-Length"); cl != "" {
		req.Header.Del("Content-Length")
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 && body != nil {
			req.ContentLength = n
		}
	}

	return req, nil
}

// parseTarget parses an absolute http or https URI.
func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	return u, nil
}

func portOf(u *url.URL) (int, error) {
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("%w: port %q", ErrInvalidURL, p)
		}
		return n, nil
	}
	return defaultPort(u.Scheme), nil
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// requestTarget returns pathname, plus "?" and the query when present.
func requestTarget(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery == "" {
		return path
	}
	return path + "?" + u.RawQuery
}

func carriesPayload(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestBuildParams(t *testing.T) {
	cert := &Certificate{CA: []byte("ca")}

	type args struct {
		target string
		cfg    func(*RequestConfig)
	}

	tests := []struct {
		name        string
		args        args
		wantScheme  string
		wantHost    string
		wantPort    int
		wantPath    string
		wantHeader  http.Header
		wantCert    bool
		wantErrorIs error
	}{
		{
			name:       "given https target without port, then uses 443 and path with query",
			args:       args{target: "https://someurl.not/a/b?x=1"},
			wantScheme: "https",
			wantHost:   "someurl.not",
			wantPort:   443,
			wantPath:   "/a/b?x=1",
		},
		{
			name:       "given http target with explicit port and no path, then path is root",
			args:       args{target: "http://someurl.not:8080"},
			wantScheme: "http",
			wantHost:   "someurl.not",
			wantPort:   8080,
			wantPath:   "/",
		},
		{
			name: "given POST with text body, then infers content type and length",
			args: args{
				target: "http://someurl.not/users",
				cfg: func(c *RequestConfig) {
					c.Method = http.MethodPost
					c.Body = TextBody(`{"a":1}`)
				},
			},
			wantScheme: "http",
			wantHost:   "someurl.not",
			wantPort:   80,
			wantPath:   "/users",
			wantHeader: http.Header{
				"Content-Type":   {"application/json"},
				"Content-Length": {"7"},
			},
		},
		{
			name: "given PUT with explicit content type, then keeps it",
			args: args{
				target: "http://someurl.not/users",
				cfg: func(c *RequestConfig) {
					c.Method = http.MethodPut
					c.Header.Set("Content-Type", "text/plain")
					c.Body = TextBody("hello")
				},
			},
			wantScheme: "http",
			wantHost:   "someurl.not",
			wantPort:   80,
			wantPath:   "/users",
			wantHeader: http.Header{
				"Content-Type":   {"text/plain"},
				"Content-Length": {"5"},
			},
		},
		{
			name: "given PATCH with binary body, then infers content type only",
			args: args{
				target: "http://someurl.not/blob",
				cfg: func(c *RequestConfig) {
					c.Method = http.MethodPatch
					c.Body = BinaryBody([]byte{1, 2, 3})
				},
			},
			wantScheme: "http",
			wantHost:   "someurl.not",
			wantPort:   80,
			wantPath:   "/blob",
			wantHeader: http.Header{"Content-Type": {"application/json"}},
		},
		{
			name: "given GET with body, then no headers are inferred",
			args: args{
				target: "http://someurl.not/search",
				cfg: func(c *RequestConfig) {
					c.Body = TextBody("q")
				},
			},
			wantScheme: "http",
			wantHost:   "someurl.not",
			wantPort:   80,
			wantPath:   "/search",
		},
		{
			name: "given proxy, then connects to proxy with absolute target",
			args: args{
				target: "https://someurl.not/x?y=1",
				cfg: func(c *RequestConfig) {
					c.Proxy = "http://proxy.local:3128"
				},
			},
			wantScheme: "http",
			wantHost:   "proxy.local",
			wantPort:   3128,
			wantPath:   "https://someurl.not/x?y=1",
			wantHeader: http.Header{"Host": {"https://someurl.not"}},
		},
		{
			name: "given certificate on https target, then carries it",
			args: args{
				target: "https://someurl.not/",
				cfg:    func(c *RequestConfig) { c.Certificate = cert },
			},
			wantScheme: "https",
			wantHost:   "someurl.not",
			wantPort:   443,
			wantPath:   "/",
			wantCert:   true,
		},
		{
			name: "given certificate on http target, then drops it",
			args: args{
				target: "http://someurl.not/",
				cfg:    func(c *RequestConfig) { c.Certificate = cert },
			},
			wantScheme: "http",
			wantHost:   "someurl.not",
			wantPort:   80,
			wantPath:   "/",
		},
		{
			name: "given certificate through https proxy, then carries it",
			args: args{
				target: "https://someurl.not/x",
				cfg: func(c *RequestConfig) {
					c.Certificate = cert
					c.Proxy = "https://proxy.local"
				},
			},
			wantScheme: "https",
			wantHost:   "proxy.local",
			wantPort:   443,
			wantPath:   "https://someurl.not/x",
			wantHeader: http.Header{"Host": {"https://someurl.not"}},
			wantCert:   true,
		},
		{
			name: "given certificate through http proxy, then returns ErrCertificateProxy",
			args: args{
				target: "https://someurl.not/x",
				cfg: func(c *RequestConfig) {
					c.Certificate = cert
					c.Proxy = "http://proxy.local:3128"
				},
			},
			wantErrorIs: ErrCertificateProxy,
		},
		{
			name: "given proxy without host, then returns ErrInvalidURL",
			args: args{
				target: "http://someurl.not/",
				cfg:    func(c *RequestConfig) { c.Proxy = "not a proxy" },
			},
			wantErrorIs: ErrInvalidURL,
		},
		{
			name:        "given target without host, then returns ErrInvalidURL",
			args:        args{target: "/relative"},
			wantErrorIs: ErrInvalidURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultRequestConfig()
			if tt.args.cfg != nil {
				tt.args.cfg(&cfg)
			}

			params, err := BuildParams(mustParse(t, tt.args.target), &cfg)

			if tt.wantErrorIs != nil {
				require.ErrorIs(t, err, tt.wantErrorIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScheme, params.Scheme)
			assert.Equal(t, tt.wantHost, params.Host)
			assert.Equal(t, tt.wantPort, params.Port)
			assert.Equal(t, tt.wantPath, params.Path)
			assert.Equal(t, cfg.Method, params.Method)
			assert.Equal(t, tt.wantHeader, params.Header)
			if tt.wantCert {
				assert.Same(t, cert, params.Certificate)
			} else {
				assert.Nil(t, params.Certificate)
			}
		})
	}
}

func TestBuildParams_DoesNotMutateConfig(t *testing.T) {
	cfg := defaultRequestConfig()
	cfg.Method = http.MethodPost
	cfg.Body = TextBody("x")
	cfg.Proxy = "http://proxy.local"

	_, err := BuildParams(mustParse(t, "https://someurl.not/"), &cfg)

	require.NoError(t, err)
	assert.Empty(t, cfg.Header)
}

func TestConnectionParams_NewRequest(t *testing.T) {
	t.Run("given direct params, then addresses the server", func(t *testing.T) {
		params := &ConnectionParams{
			Scheme: "https",
			Host:   "someurl.not",
			Port:   443,
			Path:   "/a?b=1",
			Method: http.MethodGet,
			Header: http.Header{"X-Trace": {"1"}},
		}

		req, err := params.NewRequest(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, "https://someurl.not/a?b=1", req.URL.String())
		assert.Equal(t, "1", req.Header.Get("X-Trace"))
	})

	t.Run("given non-default port, then keeps it in the address", func(t *testing.T) {
		params := &ConnectionParams{Scheme: "http", Host: "127.0.0.1", Port: 8080, Path: "/", Method: http.MethodGet}

		req, err := params.NewRequest(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:8080", req.URL.Host)
	})

	t.Run("given proxied params, then writes absolute-form target and host", func(t *testing.T) {
		params := &ConnectionParams{
			Scheme: "http",
			Host:   "proxy.local",
			Port:   3128,
			Path:   "https://someurl.not/x?y=1",
			Method: http.MethodGet,
			Header: http.Header{"Host": {"https://someurl.not"}},
		}

		req, err := params.NewRequest(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, "proxy.local:3128", req.URL.Host)
		assert.Equal(t, "https://someurl.not/x?y=1", req.URL.RequestURI())
		assert.Equal(t, "someurl.not", req.Host)
		assert.Empty(t, req.Header.Get("Host"))
	})

	t.Run("given content length header, then moves it to the request", func(t *testing.T) {
		params := &ConnectionParams{
			Scheme: "http",
			Host:   "someurl.not",
			Port:   80,
			Path:   "/",
			Method: http.MethodPost,
			Header: http.Header{"Content-Length": {"5"}},
		}

		req, err := params.NewRequest(context.Background(), strings.NewReader("hello"))

		require.NoError(t, err)
		assert.Equal(t, int64(5), req.ContentLength)
		assert.Empty(t, req.Header.Get("Content-Length"))
		data, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "given http URI, then parses", raw: "http://someurl.not/x"},
		{name: "given https URI, then parses", raw: "https://someurl.not"},
		{name: "given ftp URI, then fails", raw: "ftp://someurl.not/x", wantErr: true},
		{name: "given relative URI, then fails", raw: "/x", wantErr: true},
		{name: "given URI without host, then fails", raw: "http:///x", wantErr: true},
		{name: "given unparsable URI, then fails", raw: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := parseTarget(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, u.Host)
		})
	}
}

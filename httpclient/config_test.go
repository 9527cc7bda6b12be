package httpclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRequestConfig(t *testing.T) {
	cfg := defaultRequestConfig()

	assert.Equal(t, http.MethodGet, cfg.Method)
	assert.True(t, cfg.Parse)
	assert.False(t, cfg.Stream)
	assert.False(t, cfg.FollowRedirects)
	assert.Equal(t, DefaultMaxRedirects, cfg.MaxRedirects)
	assert.NotNil(t, cfg.Header)
	assert.True(t, cfg.Body.IsEmpty())
}

func TestRequestConfig_Clone(t *testing.T) {
	orig := defaultRequestConfig()
	orig.Header.Set("X-Default", "1")

	c := orig.clone()
	c.Header.Set("X-Call", "2")
	c.FollowRedirects = true

	assert.Empty(t, orig.Header.Get("X-Call"))
	assert.False(t, orig.FollowRedirects)
	assert.Equal(t, "1", c.Header.Get("X-Default"))
}

func TestRequestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         func(*RequestConfig)
		wantMethod  string
		wantErrorIs error
	}{
		{
			name:       "given lower-case method, then normalizes it",
			cfg:        func(c *RequestConfig) { c.Method = "patch" },
			wantMethod: http.MethodPatch,
		},
		{
			name:        "given HEAD, then returns ErrUnsupportedMethod",
			cfg:         func(c *RequestConfig) { c.Method = http.MethodHead },
			wantErrorIs: ErrUnsupportedMethod,
		},
		{
			name:        "given deferred body error, then returns it",
			cfg:         func(c *RequestConfig) { c.bodyErr = errBoom },
			wantErrorIs: errBoom,
		},
		{
			name:       "given negative max redirects, then clamps to zero",
			cfg:        func(c *RequestConfig) { c.MaxRedirects = -1 },
			wantMethod: http.MethodGet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultRequestConfig()
			tt.cfg(&cfg)

			err := cfg.validate()

			if tt.wantErrorIs != nil {
				require.ErrorIs(t, err, tt.wantErrorIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, cfg.Method)
			assert.GreaterOrEqual(t, cfg.MaxRedirects, 0)
		})
	}
}

var errBoom = errors.New("boom")

func TestRequestConfig_Payload(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		body      Body
		path      string
		wantFile  bool
		wantKind  BodyKind
		downloads bool
	}{
		{name: "given POST with path and no body, then uploads file", method: http.MethodPost, path: "/tmp/a", wantFile: true, wantKind: BodyStream},
		{name: "given PUT with path and no body, then uploads file", method: http.MethodPut, path: "/tmp/a", wantFile: true, wantKind: BodyStream},
		{name: "given POST with path and body, then body wins", method: http.MethodPost, path: "/tmp/a", body: TextBody("x"), wantKind: BodyText},
		{name: "given PATCH with path, then no upload", method: http.MethodPatch, path: "/tmp/a", wantKind: BodyEmpty},
		{name: "given GET with path, then downloads", method: http.MethodGet, path: "/tmp", wantKind: BodyEmpty, downloads: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultRequestConfig()
			cfg.Method = tt.method
			cfg.Body = tt.body
			cfg.Path = tt.path

			got := cfg.payload()

			assert.Equal(t, tt.wantKind, got.Kind())
			if tt.wantFile {
				assert.Equal(t, tt.path, got.file)
			}
			assert.Equal(t, tt.downloads, cfg.downloads())
		})
	}
}

func TestRequestConfig_Downloads_StreamWins(t *testing.T) {
	cfg := defaultRequestConfig()
	cfg.Path = "/tmp"
	cfg.Stream = true

	assert.False(t, cfg.downloads())
}

package httpclient

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilder_Setters(t *testing.T) {
	client := New(WithMockTransport(NewMockTransport()))
	cert := &Certificate{CA: []byte("ca")}
	pool := NewPool("p", DefaultConfig())

	rb := client.Request("Op").
		Method("put").
		Header("X-A", "1").
		Headers(map[string]string{"X-B": "2", "X-C": "3"}).
		Body("payload").
		Parse(false).
		Stream(true).
		FollowRedirects(true).
		MaxRedirects(7).
		Download("/tmp/out").
		Filename("f.bin").
		Agent(AgentPool(pool)).
		Certificate(cert).
		Proxy("http://proxy.local:8080")

	cfg := rb.cfg
	assert.Equal(t, "Op", cfg.OperationName)
	assert.Equal(t, "put", cfg.Method)
	assert.Equal(t, "1", cfg.Header.Get("X-A"))
	assert.Equal(t, "2", cfg.Header.Get("X-B"))
	assert.Equal(t, "3", cfg.Header.Get("X-C"))
	assert.Equal(t, "payload", cfg.Body.Text())
	assert.False(t, cfg.Parse)
	assert.True(t, cfg.Stream)
	assert.True(t, cfg.FollowRedirects)
	assert.Equal(t, 7, cfg.MaxRedirects)
	assert.Equal(t, "/tmp/out", cfg.Path)
	assert.Equal(t, "f.bin", cfg.Filename)
	assert.Equal(t, AgentPool(pool), cfg.Agent)
	assert.Same(t, cert, cfg.Certificate)
	assert.Equal(t, "http://proxy.local:8080", cfg.Proxy)

	rb.NoAgent()
	assert.Equal(t, AgentNone(), rb.cfg.Agent)
}

func TestRequestBuilder_DoesNotLeakIntoClientDefaults(t *testing.T) {
	client := New(WithDefaultHeader("X-Default", "1"))

	client.Request("").Header("X-Call", "1").FollowRedirects(true)

	assert.Empty(t, client.config.Defaults.Header.Get("X-Call"))
	assert.False(t, client.config.Defaults.FollowRedirects)
	assert.Equal(t, "1", client.Request("").cfg.Header.Get("X-Default"))
}

func TestRequestBuilder_Prepare(t *testing.T) {
	tests := []struct {
		name    string
		build   func(*RequestBuilder)
		uri     string
		wantURI string
	}{
		{
			name:    "given nothing to expand, then URI is unchanged",
			uri:     "https://api.example.com/users",
			wantURI: "https://api.example.com/users",
		},
		{
			name:    "given path params, then substitutes escaped values",
			build:   func(rb *RequestBuilder) { rb.PathParam("id", "a/b").PathParam("kind", "x") },
			uri:     "/users/{id}/{kind}",
			wantURI: "/users/a%2Fb/x",
		},
		{
			name:    "given query params, then appends them",
			build:   func(rb *RequestBuilder) { rb.Query("b", "2").Query("a", "1").Query("a", "3") },
			uri:     "/search",
			wantURI: "/search?a=1&a=3&b=2",
		},
		{
			name:    "given query params and existing query, then joins them",
			build:   func(rb *RequestBuilder) { rb.Query("page", "2") },
			uri:     "/search?q=go",
			wantURI: "/search?q=go&page=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := New().Request("")
			if tt.build != nil {
				tt.build(rb)
			}

			cfg, uri, err := rb.prepare(tt.uri)

			require.NoError(t, err)
			assert.NotSame(t, rb.cfg, cfg)
			assert.Equal(t, tt.wantURI, uri)
		})
	}
}

func TestRequestBuilder_Multipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("quarterly"), 0o600))

	mock := NewMockTransport().StubResponse(http.StatusOK, "")
	client, _ := newTestClient(t, WithMockTransport(mock))

	_, err := client.Request("UploadReport").
		File("document", path).
		FileReader("notes", "notes.md", strings.NewReader("# notes")).
		FormField("title", "Q4").
		FormField("author", "ada").
		Post(context.Background(), "http://files.local/upload")
	require.NoError(t, err)

	req := mock.LastRequest()
	require.NotNil(t, req)
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(strings.NewReader(string(mock.RequestBody(0))), params["boundary"])
	got := map[string]string{}
	files := map[string]string{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		if part.FileName() != "" {
			files[part.FormName()] = part.FileName() + ":" + string(data)
		} else {
			got[part.FormName()] = string(data)
		}
	}

	assert.Equal(t, map[string]string{"title": "Q4", "author": "ada"}, got)
	assert.Equal(t, map[string]string{
		"document": "report.txt:quarterly",
		"notes":    "notes.md:# notes",
	}, files)
}

func TestRequestBuilder_Multipart_ExplicitBodyWins(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "")
	client, _ := newTestClient(t, WithMockTransport(mock))

	_, err := client.Request("").
		FormField("ignored", "1").
		Body("raw").
		Post(context.Background(), "http://files.local/upload")

	require.NoError(t, err)
	assert.Equal(t, "raw", string(mock.RequestBody(0)))
	assert.Equal(t, "application/json", mock.LastRequest().Header.Get("Content-Type"))
}

func TestRequestBuilder_Multipart_MissingFile(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "")
	client, _ := newTestClient(t, WithMockTransport(mock))

	_, err := client.Request("").
		File("document", filepath.Join(t.TempDir(), "missing.txt")).
		Post(context.Background(), "http://files.local/upload")

	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, mock.RequestCount())
}

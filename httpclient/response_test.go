package httpclient

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_StatusClass(t *testing.T) {
	tests := []struct {
		status       int
		wantSuccess  bool
		wantRedirect bool
		wantError    bool
	}{
		{status: http.StatusOK, wantSuccess: true},
		{status: http.StatusNoContent, wantSuccess: true},
		{status: http.StatusFound, wantRedirect: true},
		{status: http.StatusNotModified, wantRedirect: true},
		{status: http.StatusNotFound, wantError: true},
		{status: http.StatusInternalServerError, wantError: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			r := &Response{StatusCode: tt.status}

			assert.Equal(t, tt.wantSuccess, r.IsSuccess())
			assert.Equal(t, tt.wantRedirect, r.IsRedirect())
			assert.Equal(t, tt.wantError, r.IsError())
		})
	}
}

func TestResponse_IsMalformedJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        any
		want        bool
	}{
		{name: "given JSON type and marker, then malformed", contentType: "application/json; charset=utf-8", body: MalformedJSON, want: true},
		{name: "given text type and marker text, then not malformed", contentType: "text/plain", body: MalformedJSON},
		{name: "given JSON type and parsed body, then not malformed", contentType: "application/json", body: map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Response{Header: http.Header{"Content-Type": {tt.contentType}}, Body: tt.body}

			assert.Equal(t, tt.want, r.IsMalformedJSON())
		})
	}
}

func TestResponse_Decode(t *testing.T) {
	type user struct {
		Name string `json:"name" xml:"name"`
	}

	tests := []struct {
		name        string
		resp        *Response
		want        user
		wantErrorIs error
		wantErr     bool
	}{
		{
			name: "given JSON payload, then decodes it",
			resp: &Response{Header: http.Header{"Content-Type": {"application/json"}}, raw: []byte(`{"name":"ada"}`)},
			want: user{Name: "ada"},
		},
		{
			name: "given untyped payload, then reads it as JSON",
			resp: &Response{Header: http.Header{}, raw: []byte(`{"name":"bob"}`)},
			want: user{Name: "bob"},
		},
		{
			name: "given XML payload, then decodes it",
			resp: &Response{Header: http.Header{"Content-Type": {"application/atom+xml"}}, raw: []byte(`<user><name>cy</name></user>`)},
			want: user{Name: "cy"},
		},
		{
			name: "given empty payload, then leaves the target untouched",
			resp: &Response{Header: http.Header{}},
		},
		{
			name:    "given invalid JSON, then fails",
			resp:    &Response{Header: http.Header{}, raw: []byte(`{`)},
			wantErr: true,
		},
		{
			name:        "given streamed response, then returns ErrNoBody",
			resp:        &Response{Raw: &http.Response{}},
			wantErrorIs: ErrNoBody,
		},
		{
			name:        "given downloaded response, then returns ErrNoBody",
			resp:        &Response{File: "/tmp/x"},
			wantErrorIs: ErrNoBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got user
			err := tt.resp.Decode(&got)

			switch {
			case tt.wantErrorIs != nil:
				require.ErrorIs(t, err, tt.wantErrorIs)
			case tt.wantErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResponse_Accessors(t *testing.T) {
	t.Run("given buffered call, then exposes the raw payload", func(t *testing.T) {
		mock := NewMockTransport().StubJSON("/user", http.StatusOK, `{"name":"ada"}`)
		client, _ := newTestClient(t, WithMockTransport(mock), WithGenerateCurl(true))

		resp, err := client.Request("").Get(context.Background(), "http://api.local/user")
		require.NoError(t, err)

		assert.Equal(t, []byte(`{"name":"ada"}`), resp.Bytes())
		assert.Equal(t, `{"name":"ada"}`, resp.String())
		assert.Nil(t, resp.Stream())
		assert.Equal(t, "http://api.local/user", resp.URL)
		assert.Contains(t, resp.CurlCommand(), "curl 'http://api.local/user'")
	})

	t.Run("given stream call, then exposes the live body", func(t *testing.T) {
		mock := NewMockTransport().StubPath("/events", http.StatusOK, "data")
		client, _ := newTestClient(t, WithMockTransport(mock))

		resp, err := client.Request("").Stream(true).Get(context.Background(), "http://api.local/events")
		require.NoError(t, err)

		body := resp.Stream()
		require.NotNil(t, body)
		defer body.Close()
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "data", string(data))
		assert.Empty(t, resp.String())
		assert.Nil(t, resp.Body)
	})

	t.Run("given curl disabled, then CurlCommand is empty", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client, _ := newTestClient(t, WithMockTransport(mock))

		resp, err := client.Request("").Get(context.Background(), "http://api.local/x")
		require.NoError(t, err)

		assert.Empty(t, resp.CurlCommand())
	})
}

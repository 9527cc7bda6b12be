package httpclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilder_Go(t *testing.T) {
	t.Run("given a stubbed call, then Await returns its outcome", func(t *testing.T) {
		mock := NewMockTransport().StubJSON("/users", http.StatusOK, `[1,2]`)
		client, _ := newTestClient(t, WithMockTransport(mock))

		call := client.Request("ListUsers").Go(context.Background(), "http://api.local/users")

		resp, err := call.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(2)}, resp.Body)

		select {
		case <-call.Done():
		default:
			t.Fatal("Done is closed after completion")
		}
		again, err := call.Result()
		require.NoError(t, err)
		assert.Same(t, resp, again)
	})

	t.Run("given invalid config, then completes immediately with the error", func(t *testing.T) {
		client, _ := newTestClient(t, WithMockTransport(NewMockTransport()))

		call := client.Request("").Method("OPTIONS").Go(context.Background(), "http://api.local/")

		select {
		case <-call.Done():
		case <-time.After(time.Second):
			t.Fatal("call did not complete")
		}
		_, err := call.Result()
		require.ErrorIs(t, err, ErrUnsupportedMethod)
	})

	t.Run("given await context done first, then returns its error", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		mock := NewMockTransport().
			OnRequest(func(*http.Request) { <-release }).
			StubResponse(http.StatusOK, "late")
		client, _ := newTestClient(t, WithMockTransport(mock))

		call := client.Request("").Go(context.Background(), "http://api.local/slow")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		resp, err := call.Await(ctx)

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, resp)
	})

	t.Run("given builder reused, then each call keeps its own configuration", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
		client, _ := newTestClient(t, WithMockTransport(mock))

		rb := client.Request("Reuse").Header("X-N", "1")
		first := rb.Go(context.Background(), "http://api.local/a")
		_, err := first.Result()
		require.NoError(t, err)

		rb.Header("X-N", "2")
		_, err = rb.Get(context.Background(), "http://api.local/b")
		require.NoError(t, err)

		reqs := mock.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, "1", reqs[0].Header.Get("X-N"))
		assert.Equal(t, "2", reqs[1].Header.Get("X-N"))
	})
}

func TestRequestBuilder_Then(t *testing.T) {
	t.Run("given a stubbed call, then invokes the callback once", func(t *testing.T) {
		mock := NewMockTransport().StubPath("/ping", http.StatusOK, "pong")
		client, _ := newTestClient(t, WithMockTransport(mock))

		type outcome struct {
			resp *Response
			err  error
		}
		done := make(chan outcome, 2)

		client.Request("Ping").Then(context.Background(), "http://api.local/ping", func(resp *Response, err error) {
			done <- outcome{resp, err}
		})

		select {
		case got := <-done:
			require.NoError(t, got.err)
			assert.Equal(t, "pong", got.resp.Body)
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}

		select {
		case <-done:
			t.Fatal("callback invoked twice")
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("given a transport error, then passes it to the callback", func(t *testing.T) {
		mock := NewMockTransport().StubError(errBoom)
		client, _ := newTestClient(t, WithMockTransport(mock))

		errs := make(chan error, 1)
		client.Request("").Then(context.Background(), "http://api.local/x", func(_ *Response, err error) {
			errs <- err
		})

		select {
		case err := <-errs:
			require.ErrorIs(t, err, errBoom)
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}
	})
}

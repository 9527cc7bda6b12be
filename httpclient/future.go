package httpclient

import "context"

// Call is a call running in the background, started by RequestBuilder.Go.
type Call struct {
	done chan struct{}
	resp *Response
	err  error
}

func newCall() *Call {
	return &Call{done: make(chan struct{})}
}

func (c *Call) complete(resp *Response, err error) {
	c.resp, c.err = resp, err
	close(c.done)
}

// Done is closed once the call has completed.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Await blocks until the call completes or ctx is done. Giving up on the
// wait does not cancel the call; cancel the context it was started with
// for that.
func (c *Call) Await(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
		return c.resp, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the call completes.
func (c *Call) Result() (*Response, error) {
	<-c.done
	return c.resp, c.err
}

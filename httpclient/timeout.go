package httpclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// hopDeadline enforces Config.Timeout on one hop. It bounds the hop until
// the response headers arrive; a buffered body stays under it until read,
// while streamed and downloaded bodies are lifted out of it so they may
// run as long as the caller reads.
type hopDeadline struct {
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	expired atomic.Bool
}

// newHopDeadline derives the hop context from ctx. The context is
// cancelled when the timeout expires or release is called. A zero
// timeout never expires.
func newHopDeadline(ctx context.Context, timeout time.Duration) (context.Context, *hopDeadline) {
	ctx, cancel := context.WithCancel(ctx)
	d := &hopDeadline{timeout: timeout, cancel: cancel}
	if timeout > 0 {
		d.timer = time.AfterFunc(timeout, func() {
			d.expired.Store(true)
			cancel()
		})
	}
	return ctx, d
}

// lift stops the timeout without cancelling the hop context. It reports
// false when the timeout already fired.
func (d *hopDeadline) lift() bool {
	if d.timer == nil {
		return true
	}
	return d.timer.Stop()
}

// release stops the timeout and cancels the hop context. Safe to call
// more than once.
func (d *hopDeadline) release() {
	d.lift()
	d.cancel()
}

// wrap replaces err with a timeout error when the hop failed because its
// timeout fired.
func (d *hopDeadline) wrap(err error) error {
	if err != nil && d.expired.Load() {
		return &HopTimeoutError{After: d.timeout}
	}
	return err
}

// HopTimeoutError is returned when a hop exceeds Config.Timeout before
// its response headers arrive or while its buffered body is read. It
// satisfies net.Error and matches context.DeadlineExceeded.
type HopTimeoutError struct {
	// After is the configured timeout.
	After time.Duration
}

func (e *HopTimeoutError) Error() string {
	return fmt.Sprintf("hop timeout exceeded after %s", e.After)
}

// Is matches context.DeadlineExceeded.
func (e *HopTimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// Timeout implements net.Error.
func (e *HopTimeoutError) Timeout() bool { return true }

// Temporary implements net.Error.
func (e *HopTimeoutError) Temporary() bool { return true }
